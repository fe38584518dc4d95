package logger_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/relay/pkg/logger"
)

// failingHandler accepts every record and always fails to write it.
type failingHandler struct{}

func (failingHandler) Enabled(context.Context, slog.Level) bool  { return true }
func (failingHandler) Handle(context.Context, slog.Record) error { return errors.New("disk full") }
func (h failingHandler) WithAttrs([]slog.Attr) slog.Handler      { return h }
func (h failingHandler) WithGroup(string) slog.Handler           { return h }

func decodeLine(buf *bytes.Buffer) map[string]any {
	var parsed map[string]any
	Expect(json.Unmarshal([]byte(strings.TrimSpace(buf.String())), &parsed)).To(Succeed())
	return parsed
}

var _ = Describe("ParseFormat", func() {
	DescribeTable("accepted names",
		func(name string, want logger.Format) {
			got, err := logger.ParseFormat(name)
			Expect(err).NotTo(HaveOccurred())
			Expect(got).To(Equal(want))
		},
		Entry("pretty", "pretty", logger.FormatPretty),
		Entry("json", "json", logger.FormatJSON),
		Entry("text", "text", logger.FormatText),
		Entry("mixed case", " JSON ", logger.FormatJSON),
		Entry("empty", "", logger.FormatText),
	)

	It("rejects unknown names", func() {
		_, err := logger.ParseFormat("xml")
		Expect(err).To(MatchError(ContainSubstring("unknown log format")))
	})
})

var _ = Describe("ParseLevel", func() {
	DescribeTable("accepted names",
		func(name string, want slog.Level) {
			got, err := logger.ParseLevel(name)
			Expect(err).NotTo(HaveOccurred())
			Expect(got).To(Equal(want))
		},
		Entry("debug", "debug", slog.LevelDebug),
		Entry("info", "info", slog.LevelInfo),
		Entry("warn", "WARN", slog.LevelWarn),
		Entry("error", "error", slog.LevelError),
		Entry("empty", "", slog.LevelInfo),
	)

	It("rejects unknown names", func() {
		_, err := logger.ParseLevel("loud")
		Expect(err).To(HaveOccurred())
	})
})

var _ = Describe("New", func() {
	It("creates a text logger by default", func() {
		var buf bytes.Buffer
		l := logger.New(logger.WithWriter(&buf))
		l.Info("hello", "request_id", "abc")

		Expect(buf.String()).To(ContainSubstring("msg=hello"))
		Expect(buf.String()).To(ContainSubstring("request_id=abc"))
	})

	It("creates a JSON logger", func() {
		var buf bytes.Buffer
		l := logger.New(logger.WithWriter(&buf), logger.WithFormat(logger.FormatJSON))
		l.Info("stream complete", "fragments", 3)

		parsed := decodeLine(&buf)
		Expect(parsed["msg"]).To(Equal("stream complete"))
		Expect(parsed["fragments"]).To(BeNumerically("==", 3))
	})

	It("creates a pretty logger", func() {
		var buf bytes.Buffer
		l := logger.New(logger.WithWriter(&buf), logger.WithFormat(logger.FormatPretty))
		l.Info("pretty output")

		Expect(buf.String()).To(ContainSubstring("pretty output"))
	})

	It("applies the level to the pretty logger", func() {
		var buf bytes.Buffer
		l := logger.New(
			logger.WithWriter(&buf),
			logger.WithFormat(logger.FormatPretty),
			logger.WithLevel(slog.LevelWarn),
		)
		l.Info("hidden")
		l.Warn("shown")

		Expect(buf.String()).NotTo(ContainSubstring("hidden"))
		Expect(buf.String()).To(ContainSubstring("shown"))
	})

	It("filters debug by default", func() {
		var buf bytes.Buffer
		l := logger.New(logger.WithWriter(&buf))
		l.Debug("hidden")

		Expect(buf.String()).To(BeEmpty())
	})

	It("lets WithDebug override a configured level", func() {
		var buf bytes.Buffer
		l := logger.New(
			logger.WithWriter(&buf),
			logger.WithLevel(slog.LevelError),
			logger.WithDebug(true),
		)
		l.Debug("debug msg")

		Expect(buf.String()).To(ContainSubstring("debug msg"))
	})

	It("keeps the configured level when WithDebug is false", func() {
		var buf bytes.Buffer
		l := logger.New(
			logger.WithWriter(&buf),
			logger.WithLevel(slog.LevelError),
			logger.WithDebug(false),
		)
		l.Warn("hidden")

		Expect(buf.String()).To(BeEmpty())
	})

	It("supports multiple writers", func() {
		var buf1, buf2 bytes.Buffer
		l := logger.New(logger.WithWriters(&buf1, &buf2))
		l.Info("multi")

		Expect(buf1.String()).To(ContainSubstring("multi"))
		Expect(buf2.String()).To(ContainSubstring("multi"))
	})
})

var _ = Describe("Nop", func() {
	It("discards all output", func() {
		l := logger.Nop()
		Expect(l.Handler().Enabled(context.Background(), slog.LevelError)).To(BeFalse())
		Expect(func() { l.With("key", "value").Error("msg") }).NotTo(Panic())
	})
})

var _ = Describe("Multi", func() {
	It("dispatches to all loggers", func() {
		var buf1, buf2 bytes.Buffer
		multi := logger.Multi(
			logger.New(logger.WithWriter(&buf1)),
			logger.New(logger.WithWriter(&buf2), logger.WithFormat(logger.FormatJSON)),
		)

		multi.Info("broadcast", "key", "val")

		Expect(buf1.String()).To(ContainSubstring("broadcast"))
		Expect(decodeLine(&buf2)["key"]).To(Equal("val"))
	})

	It("respects each logger's level", func() {
		var debugBuf, infoBuf bytes.Buffer
		multi := logger.Multi(
			logger.New(logger.WithWriter(&debugBuf), logger.WithDebug(true)),
			logger.New(logger.WithWriter(&infoBuf)),
		)

		multi.Debug("details")

		Expect(debugBuf.String()).To(ContainSubstring("details"))
		Expect(infoBuf.String()).To(BeEmpty())
	})

	It("keeps delivering when one handler fails", func() {
		var buf bytes.Buffer
		h := logger.Multi(
			slog.New(failingHandler{}),
			logger.New(logger.WithWriter(&buf)),
		).Handler()

		r := slog.NewRecord(time.Now(), slog.LevelInfo, "still here", 0)
		err := h.Handle(context.Background(), r)

		Expect(err).To(MatchError(ContainSubstring("disk full")))
		Expect(buf.String()).To(ContainSubstring("still here"))
	})

	It("carries attrs and groups to every handler", func() {
		var buf1, buf2 bytes.Buffer
		multi := logger.Multi(
			logger.New(logger.WithWriter(&buf1), logger.WithFormat(logger.FormatJSON)),
			logger.New(logger.WithWriter(&buf2), logger.WithFormat(logger.FormatJSON)),
		)

		multi.With("component", "relay").WithGroup("request").Info("processed", "route", "/api/chat")

		for _, buf := range []*bytes.Buffer{&buf1, &buf2} {
			parsed := decodeLine(buf)
			Expect(parsed["component"]).To(Equal("relay"))
			group, ok := parsed["request"].(map[string]any)
			Expect(ok).To(BeTrue(), "expected 'request' group in JSON output")
			Expect(group["route"]).To(Equal("/api/chat"))
		}
	})

	It("skips nil loggers", func() {
		var buf bytes.Buffer
		multi := logger.Multi(nil, logger.New(logger.WithWriter(&buf)))
		multi.Info("ok")
		Expect(buf.String()).To(ContainSubstring("ok"))
	})
})
