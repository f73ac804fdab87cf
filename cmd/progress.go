/*
Copyright © 2025 Katie Mulliken <katie@mulliken.net>
*/
package cmd

import (
	"io"

	"github.com/schollz/progressbar/v3"
)

// progressReporter returns a callback for RefreshOptions.Progress and
// ImportOptions.Progress that draws a bar on w. The bar is created on the
// first call, once the total is known.
func progressReporter(w io.Writer, description string) func(done, total int) {
	var bar *progressbar.ProgressBar
	return func(done, total int) {
		if bar == nil {
			bar = progressbar.NewOptions(total,
				progressbar.OptionSetWriter(w),
				progressbar.OptionSetDescription(description),
				progressbar.OptionShowCount(),
				progressbar.OptionSetWidth(40),
				progressbar.OptionOnCompletion(func() { _, _ = io.WriteString(w, "\n") }),
			)
		}
		_ = bar.Set(done)
	}
}
