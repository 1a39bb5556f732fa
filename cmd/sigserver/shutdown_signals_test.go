package main

import (
	"context"
	"io"
	"os"
	"testing"
	"time"

	"sigserver/internal/logging"
)

func TestWatchShutdownSignalsCancelsOnce(t *testing.T) {
	buffer := logging.NewLogBuffer(10)
	logger := logging.NewLoggerWithOutput(buffer, logging.LevelInfo, io.Discard)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	signalCh := make(chan os.Signal, 3)
	stop := watchShutdownSignals(logger, cancel, signalCh)
	defer stop()

	signalCh <- os.Interrupt
	select {
	case <-ctx.Done():
	case <-time.After(time.Second):
		t.Fatalf("expected shutdown context to be canceled")
	}

	signalCh <- os.Interrupt
	signalCh <- os.Interrupt
	deadline := time.Now().Add(time.Second)
	for buffer.Len() < 2 {
		if time.Now().After(deadline) {
			t.Fatalf("expected repeat signal to be logged")
		}
		time.Sleep(5 * time.Millisecond)
	}
	time.Sleep(20 * time.Millisecond)

	entries := buffer.List()
	if len(entries) != 2 {
		t.Fatalf("expected two log entries, got %d", len(entries))
	}
	if entries[0].Message != "shutdown signal received" || entries[0].Context["signal"] != os.Interrupt.String() {
		t.Fatalf("unexpected first entry: %+v", entries[0])
	}
	if entries[1].Message != "shutdown already in progress; ignoring signal" {
		t.Fatalf("unexpected second entry: %+v", entries[1])
	}
}

func TestWatchShutdownSignalsNilChannel(t *testing.T) {
	stop := watchShutdownSignals(nil, nil, nil)
	stop()
}
