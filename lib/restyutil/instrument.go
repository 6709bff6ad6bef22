package restyutil

import (
	"context"
	"errors"
	"log/slog"
	"scrapeflow/lib/har"
	"strconv"
	"sync/atomic"

	"github.com/go-resty/resty/v2"
)

// InstrumentOutput receives every exchange made by an instrumented client.
type InstrumentOutput interface {
	Write(id string, entry har.Entry)
}

type instrumentCtx struct {
	output    InstrumentOutput
	idcounter *uint64
}

// InstrumentClient captures every request made by `client` as a HAR entry
// and hands it to `output`. `output` can be nil, if it is, then the function
// is a no-op.
func InstrumentClient(client *resty.Client, output InstrumentOutput) {
	if output == nil {
		return
	}

	var idcounter uint64
	i := instrumentCtx{output: output, idcounter: &idcounter}
	client.EnableTrace()
	client.OnBeforeRequest(i.onBeforeRequest)
	client.OnAfterResponse(i.onAfterResponse)
	client.OnError(i.onError)
}

type messageIdKey struct{}

func messageId(ctx context.Context) string {
	id, _ := ctx.Value(messageIdKey{}).(string)
	return id
}

func (i instrumentCtx) onBeforeRequest(_ *resty.Client, req *resty.Request) error {
	id := strconv.FormatUint(atomic.AddUint64(i.idcounter, 1), 10)
	ctx := context.WithValue(req.Context(), messageIdKey{}, id)
	slog.DebugContext(
		ctx, "start request",
		"method", req.Method,
		"url", req.URL,
		"message_id", id,
	)
	req.SetContext(ctx)
	return nil
}

func (i instrumentCtx) onAfterResponse(_ *resty.Client, res *resty.Response) error {
	ctx := res.Request.Context()
	id := messageId(ctx)

	i.output.Write(id, EntryFromResponse(res))
	slog.DebugContext(
		ctx, "request captured",
		"method", res.Request.Method,
		"url", res.Request.URL,
		"status", res.StatusCode(),
		"message_id", id,
	)
	return nil
}

func (i instrumentCtx) onError(req *resty.Request, err error) {
	ctx := req.Context()
	id := messageId(ctx)

	// responses that failed in a later hook were already captured
	var resErr *resty.ResponseError
	if errors.As(err, &resErr) && resErr.Response != nil && resErr.Response.RawResponse != nil {
		return
	}

	i.output.Write(id, EntryFromError(req, err))
	slog.DebugContext(
		ctx, "request failed",
		"method", req.Method,
		"url", req.URL,
		"err", err,
		"message_id", id,
	)
}
