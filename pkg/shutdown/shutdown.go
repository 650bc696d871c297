// Package shutdown coordinates graceful termination of long running commands such as a change
// watch: it waits for SIGINT/SIGTERM (or the end of the root context) and runs a bounded cleanup.
package shutdown

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/marcodd23/go-dal-core/pkg/logx"
)

// WaitForShutdown waits for OS signals (SIGINT, SIGTERM) or for rootCtx to be done, then runs
// cleanupCallback within a context bounded by timeoutMilli.
//
// The cleanup context is detached from rootCtx cancellation, so the callback still gets its full
// time budget when the wait ended because rootCtx was cancelled.
//
// Usage:
//
//	shutdown.WaitForShutdown(ctx, 5000, func(timeoutCtx context.Context) {
//	    watcher.Stop()
//	    _ = publisher.Close(timeoutCtx)
//	})
func WaitForShutdown(rootCtx context.Context, timeoutMilli int64, cleanupCallback func(timeoutCtx context.Context)) {
	// Handle SIGINT and SIGTERM signals
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(signals)

	select {
	case signalCaptured := <-signals:
		logx.GetLogger().LogDebug(rootCtx, fmt.Sprintf("Interrupt signal captured: %s", signalCaptured.String()))
	case <-rootCtx.Done():
		logx.GetLogger().LogDebug(rootCtx, "Root context done, shutting down")
	}

	// Create a context with a timeout to give time to release resource
	timeoutCtx, cancel := context.WithTimeout(context.WithoutCancel(rootCtx), time.Duration(timeoutMilli)*time.Millisecond)
	defer cancel()

	cleanUp(timeoutCtx, cleanupCallback)
}

// cleanUp executes the provided cleanup callback function and logs the result.
// It waits for either the cleanup to complete or the context to be cancelled.
func cleanUp(timeoutCtx context.Context, cleanupCallback func(timeoutCtx context.Context)) {
	logx.GetLogger().LogInfo(timeoutCtx, "Cleaning up all resources ....")

	// Channel used to receive the result from cleanup callback function
	ch := make(chan string, 1)

	go func() {
		defer close(ch)
		if cleanupCallback != nil {
			cleanupCallback(timeoutCtx)
		}
		ch <- "All resources cleaned up"
	}()

	select {
	case <-timeoutCtx.Done():
		logx.GetLogger().LogError(timeoutCtx, "Deadline exceeded during context cancellation", timeoutCtx.Err())
	case result := <-ch:
		logx.GetLogger().LogInfo(timeoutCtx, result)
	}
}

// RunTaskWithContextCancellationCheck executes a task and provides a mechanism to notify the task of impending cancellation.
// On SIGTERM or SIGINT the terminateSignal channel is closed and the task is awaited before its
// context is cancelled. The task error is returned.
//
// Usage:
//
//	err := shutdown.RunTaskWithContextCancellationCheck(ctx, func(cancelCtx context.Context, terminateSignal chan struct{}) error {
//	    for {
//	        select {
//	        case <-cancelCtx.Done():
//	            return cancelCtx.Err()
//	        case <-terminateSignal:
//	            return nil
//	        case <-ticker.C:
//	            // poll once
//	        }
//	    }
//	})
func RunTaskWithContextCancellationCheck(rootCtx context.Context, task func(cancelCtx context.Context, terminateSignal chan struct{}) error) error {
	cancelCtx, cancel := context.WithCancel(rootCtx)
	defer cancel()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGTERM, syscall.SIGINT)
	defer signal.Stop(sigs)

	terminateSignal := make(chan struct{})
	taskCompleted := make(chan error, 1)

	go func() {
		taskCompleted <- task(cancelCtx, terminateSignal)
	}()

	select {
	case sig := <-sigs:
		logx.GetLogger().LogInfo(cancelCtx, fmt.Sprintf("Received signal: %s", sig))
		close(terminateSignal) // Signal termination to the task

		return <-taskCompleted
	case err := <-taskCompleted:
		if err != nil {
			logx.GetLogger().LogError(cancelCtx, "Task error", err)
		}

		return err
	}
}
