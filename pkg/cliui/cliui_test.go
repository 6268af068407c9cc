package cliui_test

import (
	"bytes"
	"errors"
	"time"

	"github.com/charmbracelet/x/ansi"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/mnemosyne/pkg/cliui"
)

var _ = Describe("cliui", func() {
	It("formats durations", func() {
		Expect(cliui.FormatDuration(12 * time.Millisecond)).To(Equal("12ms"))
		Expect(cliui.FormatDuration(3200 * time.Millisecond)).To(Equal("3.2s"))
	})

	It("renders missing create times as a dash", func() {
		Expect(cliui.FormatUnix(0)).To(Equal("-"))
		Expect(cliui.FormatUnix(1_700_000_000)).To(HavePrefix("2023-11-1"))
	})

	It("truncates by display width", func() {
		Expect(cliui.Truncate("short", 10)).To(Equal("short"))
		out := cliui.Truncate("日本語のテキストです", 7)
		Expect(ansi.StringWidth(out)).To(BeNumerically("<=", 7))
		Expect(out).To(HaveSuffix("…"))
	})

	It("draws a bar of the requested width", func() {
		Expect(ansi.StringWidth(cliui.ProgressBar(3, 10, 20))).To(Equal(20))
		Expect(cliui.ProgressBar(1, 0, 20)).To(BeEmpty())
	})

	It("reports step results", func() {
		var buf bytes.Buffer
		err := cliui.Step(&buf, "working", func() error { return errors.New("boom") })
		Expect(err).To(MatchError("boom"))
		Expect(buf.String()).To(ContainSubstring("working"))
		Expect(buf.String()).To(ContainSubstring(cliui.FailMark))
	})
})
