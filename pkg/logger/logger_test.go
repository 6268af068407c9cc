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

	"github.com/papercomputeco/mnemosyne/pkg/logger"
)

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) {
	return 0, errors.New("disk full")
}

func decodeLine(buf *bytes.Buffer) map[string]any {
	var parsed map[string]any
	ExpectWithOffset(1, json.Unmarshal([]byte(strings.TrimSpace(buf.String())), &parsed)).To(Succeed())
	return parsed
}

var _ = Describe("Logger", func() {
	Describe("New", func() {
		It("writes text records at info by default", func() {
			var buf bytes.Buffer
			l := logger.New(logger.WithWriter(&buf))
			l.Debug("hidden")
			l.Info("collection dropped", "collection", "mnemosyne_default")

			Expect(buf.String()).NotTo(ContainSubstring("hidden"))
			Expect(buf.String()).To(ContainSubstring("collection=mnemosyne_default"))
		})

		It("enables debug records", func() {
			var buf bytes.Buffer
			logger.New(logger.WithWriter(&buf), logger.WithDebug(true)).Debug("probing dimension")
			Expect(buf.String()).To(ContainSubstring("probing dimension"))
		})

		It("writes JSON records", func() {
			var buf bytes.Buffer
			logger.New(logger.WithWriter(&buf), logger.WithJSON(true)).Info("migrated", "succeeded", 42)

			parsed := decodeLine(&buf)
			Expect(parsed["msg"]).To(Equal("migrated"))
			Expect(parsed["succeeded"]).To(BeNumerically("==", 42))
		})

		It("prefers JSON over pretty output", func() {
			var buf bytes.Buffer
			logger.New(logger.WithWriter(&buf), logger.WithJSON(true), logger.WithPretty(true)).Info("both")
			Expect(decodeLine(&buf)["msg"]).To(Equal("both"))
		})

		It("writes pretty records", func() {
			var buf bytes.Buffer
			logger.New(logger.WithWriter(&buf), logger.WithPretty(true)).Warn("pretty output")
			Expect(buf.String()).To(ContainSubstring("pretty output"))
		})

		It("fans out to several writers", func() {
			var buf1, buf2 bytes.Buffer
			logger.New(logger.WithWriters(&buf1, &buf2)).Info("multi")
			Expect(buf1.String()).To(ContainSubstring("multi"))
			Expect(buf2.String()).To(ContainSubstring("multi"))
		})

		It("nests grouped attributes", func() {
			var buf bytes.Buffer
			l := logger.New(logger.WithWriter(&buf), logger.WithJSON(true))
			l.With("service", "api").WithGroup("request").Info("handled", "method", "GET")

			parsed := decodeLine(&buf)
			Expect(parsed["service"]).To(Equal("api"))
			Expect(parsed["request"]).To(HaveKeyWithValue("method", "GET"))
		})
	})

	Describe("Nop", func() {
		It("is disabled at every level", func() {
			l := logger.Nop()
			for _, level := range []slog.Level{slog.LevelDebug, slog.LevelInfo, slog.LevelError} {
				Expect(l.Handler().Enabled(context.Background(), level)).To(BeFalse())
			}
			Expect(func() {
				l.With("k", "v").WithGroup("g").Error("msg")
			}).NotTo(Panic())
		})
	})

	Describe("Multi", func() {
		It("dispatches to every logger", func() {
			var buf1, buf2 bytes.Buffer
			multi := logger.Multi(
				logger.New(logger.WithWriter(&buf1)),
				logger.New(logger.WithWriter(&buf2), logger.WithJSON(true)),
			)
			multi.Info("broadcast", "key", "val")

			Expect(buf1.String()).To(ContainSubstring("broadcast"))
			Expect(decodeLine(&buf2)["key"]).To(Equal("val"))
		})

		It("honors each handler's level", func() {
			var info, debug bytes.Buffer
			multi := logger.Multi(
				logger.New(logger.WithWriter(&info)),
				logger.New(logger.WithWriter(&debug), logger.WithDebug(true)),
			)
			multi.Debug("detail")

			Expect(info.String()).To(BeEmpty())
			Expect(debug.String()).To(ContainSubstring("detail"))
		})

		It("carries With and WithGroup to children", func() {
			var buf bytes.Buffer
			multi := logger.Multi(logger.New(logger.WithWriter(&buf), logger.WithJSON(true)))
			multi.With("component", "migrate").WithGroup("job").Info("done", "id", "r1")

			parsed := decodeLine(&buf)
			Expect(parsed["component"]).To(Equal("migrate"))
			Expect(parsed["job"]).To(HaveKeyWithValue("id", "r1"))
		})

		It("joins handler errors and keeps writing to healthy handlers", func() {
			var buf bytes.Buffer
			multi := logger.Multi(
				logger.New(logger.WithWriter(failingWriter{})),
				logger.New(logger.WithWriter(&buf)),
			)

			r := slog.NewRecord(time.Now(), slog.LevelInfo, "partial", 0)
			err := multi.Handler().Handle(context.Background(), r)
			Expect(err).To(MatchError(ContainSubstring("disk full")))
			Expect(buf.String()).To(ContainSubstring("partial"))
		})
	})
})
