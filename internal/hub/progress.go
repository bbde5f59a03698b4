package hub

import (
	"context"
	"io"
	"time"

	"github.com/vbauerster/mpb/v7"
	"github.com/vbauerster/mpb/v7/decor"
)

// trackedReader wraps a response body with an optional progress bar.
type trackedReader struct {
	io.Reader
	progress *mpb.Progress
	bar      *mpb.Bar
}

func (c *Client) track(ctx context.Context, body io.Reader, total int64, name string) *trackedReader {
	if c.progress == nil {
		return &trackedReader{Reader: body}
	}

	progress := mpb.NewWithContext(ctx,
		mpb.WithOutput(c.progress),
		mpb.WithWidth(60),
		mpb.WithRefreshRate(180*time.Millisecond),
	)
	if total < 0 {
		total = 0
	}
	bar := progress.AddBar(total,
		mpb.PrependDecorators(
			decor.Name(name, decor.WC{W: 40, C: decor.DidentRight}),
			decor.CountersKibiByte("% .2f / % .2f"),
		),
		mpb.AppendDecorators(
			decor.EwmaETA(decor.ET_STYLE_GO, 90),
			decor.Name(" ] "),
			decor.EwmaSpeed(decor.UnitKiB, "% .2f", 60),
		),
	)
	return &trackedReader{Reader: bar.ProxyReader(body), progress: progress, bar: bar}
}

// finish completes or aborts the bar and waits for the final render.
func (r *trackedReader) finish(ok bool) {
	if r.bar == nil {
		return
	}
	if ok {
		r.bar.SetTotal(-1, true)
	} else {
		r.bar.Abort(false)
	}
	r.progress.Wait()
}
