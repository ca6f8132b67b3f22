package logger

import (
	"context"
	"encoding/json"
	"errors"
	"io"

	"github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/schema"
	"github.com/elastic/go-elasticsearch/v7"
)

// LoggerCallback logs eino node start/end/error and mirrors payloads to
// ES when a client is configured.
type LoggerCallback struct {
	Es *elasticsearch.Client
}

func (cb *LoggerCallback) OnStart(ctx context.Context, info *callbacks.RunInfo, input callbacks.CallbackInput) context.Context {
	if err := SendWrappedLog(cb.Es, MetricsIndex, "callback", input); err != nil {
		Warnf("[OnStart] ES log write failed: %v", err)
	}
	Infof("[oracle] %s start", info.Name)
	return ctx
}

func (cb *LoggerCallback) OnEnd(ctx context.Context, info *callbacks.RunInfo, output callbacks.CallbackOutput) context.Context {
	if err := SendWrappedLog(cb.Es, MetricsIndex, "callback", output); err != nil {
		Warnf("[OnEnd] ES log write failed: %v", err)
	}
	Infof("[oracle] %s done", info.Name)
	return ctx
}

func (cb *LoggerCallback) OnError(ctx context.Context, info *callbacks.RunInfo, err error) context.Context {
	Errorf("[oracle] %s failed: %v", info.Name, err)
	return ctx
}

func (cb *LoggerCallback) OnEndWithStreamOutput(ctx context.Context, info *callbacks.RunInfo,
	output *schema.StreamReader[callbacks.CallbackOutput]) context.Context {

	go func() {
		defer func() {
			if err := recover(); err != nil {
				Warnf("[OnEndStream] panic: %v", err)
			}
		}()

		defer output.Close() // remember to close the stream in defer

		for {
			frame, err := output.Recv()
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				Warnf("[OnEndStream] recv: %v", err)
				return
			}
			if s, err := json.Marshal(frame); err == nil {
				Infof("[oracle] %s stream frame: %s", info.Name, TruncateForLog(string(s), 200))
			}
		}
	}()
	return ctx
}

func (cb *LoggerCallback) OnStartWithStreamInput(ctx context.Context, info *callbacks.RunInfo,
	input *schema.StreamReader[callbacks.CallbackInput]) context.Context {
	defer input.Close()
	return ctx
}

// TruncateForLog bounds payloads echoed into log lines.
func TruncateForLog(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
