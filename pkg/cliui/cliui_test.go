package cliui_test

import (
	"bytes"
	"errors"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/relay/pkg/cliui"
)

var _ = Describe("FormatDuration", func() {
	DescribeTable("formats durations",
		func(d time.Duration, want string) {
			Expect(cliui.FormatDuration(d)).To(Equal(want))
		},
		Entry("milliseconds", 12*time.Millisecond, "12ms"),
		Entry("zero", time.Duration(0), "0ms"),
		Entry("seconds", 3200*time.Millisecond, "3.2s"),
	)
})

var _ = Describe("Mark", func() {
	It("picks the mark from the error", func() {
		Expect(cliui.Mark(nil)).To(Equal(cliui.SuccessMark()))
		Expect(cliui.Mark(errors.New("x"))).To(Equal(cliui.FailMark()))
	})
})

var _ = Describe("Spinner", func() {
	It("returns the error from fn and ends the line", func() {
		var buf bytes.Buffer
		want := errors.New("upstream down")

		err := cliui.Step(&buf, "Waiting for reply", func() error { return want })

		Expect(err).To(MatchError(want))
		Expect(buf.String()).To(ContainSubstring("Waiting for reply"))
		Expect(buf.String()).To(HaveSuffix("\n"))
	})

	It("runs fn exactly once", func() {
		var buf bytes.Buffer
		calls := 0

		Expect(cliui.Step(&buf, "work", func() error { calls++; return nil })).To(Succeed())
		Expect(calls).To(Equal(1))
	})

	It("ignores repeated stops", func() {
		var buf bytes.Buffer
		s := cliui.StartSpinner(&buf, "work")
		s.Stop(nil)
		s.Stop(errors.New("late"))

		Expect(strings.Count(buf.String(), "\n")).To(Equal(1))
	})
})

var _ = Describe("DisableColor", func() {
	It("renders styles and marks without escape codes", func() {
		cliui.DisableColor()
		Expect(cliui.KeyStyle.Render("key")).To(Equal("key"))
		Expect(cliui.SuccessMark()).To(Equal("✓"))
	})
})

var _ = Describe("RenderMarkdown", func() {
	It("keeps the reply text", func() {
		out, err := cliui.RenderMarkdown("# Hello\n\nsome *text*", 0)
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(ContainSubstring("Hello"))
		Expect(out).To(ContainSubstring("text"))
	})

	It("wraps long lines at the requested width", func() {
		long := strings.Repeat("word ", 40)
		out, err := cliui.RenderMarkdown(long, 30)
		Expect(err).NotTo(HaveOccurred())
		Expect(strings.Count(strings.TrimSpace(out), "\n")).To(BeNumerically(">", 2))
	})
})
