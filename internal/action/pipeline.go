package action

import (
	"context"
	"fmt"
	"time"
)

// RunPipeline applies Validate -> Execute -> Postprocess around a
// handler. Any step returning OK=false stops the chain and becomes the
// final output; any panic in a step is recovered and surfaced as
// STEP_EXCEPTION.
func RunPipeline(ctx context.Context, h Handler, cmd Command) (out Output) {
	defer func() {
		if r := recover(); r != nil {
			out = Output{OK: false, Error: map[string]any{
				"code":    "STEP_EXCEPTION",
				"step":    "unknown",
				"message": fmt.Sprintf("%v", r),
			}}
		}
	}()

	cmd = validate(cmd)

	out = execute(ctx, h, cmd)
	if !out.OK {
		return out
	}

	out = postprocess(out)
	return out
}

// validate replaces a nil payload with an empty map and clamps a
// negative attempt to 0. id and type are not checked here.
func validate(cmd Command) Command {
	if cmd.Payload == nil {
		cmd.Payload = map[string]any{}
	}
	if cmd.Attempt < 0 {
		cmd.Attempt = 0
	}
	return cmd
}

func execute(ctx context.Context, h Handler, cmd Command) (out Output) {
	defer func() {
		if r := recover(); r != nil {
			out = Output{OK: false, Error: map[string]any{
				"code":    "STEP_EXCEPTION",
				"step":    "execute",
				"message": fmt.Sprintf("%v", r),
			}}
		}
	}()
	if h == nil {
		return Output{OK: false, Error: map[string]any{"code": "NO_RUN_CORE"}}
	}
	return h.Run(ctx, cmd)
}

// postprocess attaches a ts field to the result if the handler's result
// lacks one.
func postprocess(out Output) Output {
	if !out.OK {
		return out
	}
	if out.Result == nil {
		out.Result = map[string]any{}
	}
	if _, hasTS := out.Result["ts"]; !hasTS {
		out.Result["ts"] = time.Now().Unix()
	}
	return out
}
