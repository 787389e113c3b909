// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Passline Contributors

package notify_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/passline/passline/internal/notify"
	"github.com/passline/passline/pkg/errutil"
)

func TestSendEmailHandler_ProcessTask(t *testing.T) {
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))

	t.Run("delivers the decoded message", func(t *testing.T) {
		msg := notify.VerificationMessage("a@example.com", "0042")
		sender := &mockSender{}
		sender.On("Send", ctx, msg).Return(nil).Once()

		task, err := notify.NewSendEmailTask(msg)
		require.NoError(t, err)

		h := notify.NewSendEmailHandler(sender, logger)
		require.NoError(t, h.ProcessTask(ctx, task))
		sender.AssertExpectations(t)
	})

	t.Run("delivery failure is retried", func(t *testing.T) {
		msg := notify.VerificationMessage("a@example.com", "0042")
		sender := &mockSender{}
		sender.On("Send", ctx, msg).Return(errors.New("421 try later")).Once()

		task, err := notify.NewSendEmailTask(msg)
		require.NoError(t, err)

		err = notify.NewSendEmailHandler(sender, logger).ProcessTask(ctx, task)
		require.Error(t, err)
		assert.NotErrorIs(t, err, asynq.SkipRetry)
	})

	tests := []struct {
		name     string
		payload  []byte
		wantCode string
	}{
		{"malformed json", []byte("{not json"), "EMAIL_TASK_INVALID"},
		{"missing recipient", []byte(`{"subject":"Your verification code","body":"x"}`), "EMAIL_INVALID"},
	}
	for _, tt := range tests {
		t.Run(tt.name+" is not retried", func(t *testing.T) {
			sender := &mockSender{}
			err := notify.NewSendEmailHandler(sender, logger).
				ProcessTask(ctx, asynq.NewTask(notify.TypeSendEmail, tt.payload))
			require.Error(t, err)
			assert.ErrorIs(t, err, asynq.SkipRetry)
			errutil.AssertErrorCode(t, err, tt.wantCode)
			assert.Empty(t, sender.Calls)
		})
	}
}

func TestNewWorker_Validation(t *testing.T) {
	_, err := notify.NewWorker(notify.WorkerConfig{}, notify.NewLogSender(nil))
	errutil.AssertErrorCode(t, err, "QUEUE_CONFIG_INVALID")

	_, err = notify.NewWorker(notify.WorkerConfig{RedisAddr: "127.0.0.1:6379"}, nil)
	assert.Error(t, err)
}
