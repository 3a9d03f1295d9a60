/*
 * Copyright 2025 CloudWeGo Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package gopool

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFiberPoolGo(t *testing.T) {
	p := NewFiberPool()

	n := 10
	wg := sync.WaitGroup{}
	wg.Add(n)
	v := int32(0)
	for i := 0; i < n; i++ {
		p.Go(func() {
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&v, 1)
			wg.Done()
		})
	}
	wg.Wait()
	require.Equal(t, int32(n), atomic.LoadInt32(&v))
}

func TestFiberPoolPanicHandler(t *testing.T) {
	p := NewFiberPool()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	x := "testpanic"
	p.SetPanicHandler(func(c context.Context, r interface{}) {
		defer wg.Done()
		require.Equal(t, x, r)
		require.Same(t, ctx, c)
	})
	p.CtxGo(ctx, func() {
		panic(x)
	})
	wg.Wait()
}

func TestFiberPoolOutlivesCaller(t *testing.T) {
	// A fiber's goroutine keeps running long after Go returns — unlike the
	// original pooled worker, it never hands itself back for reuse.
	p := NewFiberPool()
	done := make(chan struct{})
	p.Go(func() {
		time.Sleep(5 * time.Millisecond)
		close(done)
	})
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("fiber goroutine never ran")
	}
}
