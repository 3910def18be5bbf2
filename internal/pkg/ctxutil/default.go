package ctxutil

import "context"

// Default returns context.Background() when ctx is nil.
func Default(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}

type runDataKey struct{}

// RunData identifies the worker loop iteration a call belongs to.
type RunData struct {
	Loop  string
	RunID string
}

func WithRunData(ctx context.Context, rd *RunData) context.Context {
	return context.WithValue(Default(ctx), runDataKey{}, rd)
}

func GetRunData(ctx context.Context) *RunData {
	if ctx == nil {
		return nil
	}
	if rd, ok := ctx.Value(runDataKey{}).(*RunData); ok {
		return rd
	}
	return nil
}

// LogFields returns loop and run_id key/value pairs for a logger, or nil when ctx
// carries no run data.
func LogFields(ctx context.Context) []interface{} {
	rd := GetRunData(ctx)
	if rd == nil {
		return nil
	}
	return []interface{}{"loop", rd.Loop, "run_id", rd.RunID}
}
