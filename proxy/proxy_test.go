package proxy

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/relay/pkg/eventstream"
	"github.com/papercomputeco/relay/pkg/gemini"
	"github.com/papercomputeco/relay/pkg/logger"
)

// memPublisher records published events in memory.
type memPublisher struct {
	mu     sync.Mutex
	events []*eventstream.ChatCompletedEvent
}

func (m *memPublisher) PublishChat(_ context.Context, event *eventstream.ChatCompletedEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
	return nil
}

func (m *memPublisher) Close() error { return nil }

func (m *memPublisher) all() []*eventstream.ChatCompletedEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*eventstream.ChatCompletedEvent(nil), m.events...)
}

// panicIssuer panics on every call.
type panicIssuer struct{}

func (panicIssuer) Generate(context.Context, gemini.ChatRequest) (string, error) {
	panic("boom")
}

func (panicIssuer) Stream(context.Context, gemini.ChatRequest) (io.ReadCloser, error) {
	panic("boom")
}

// fakeUpstream is a Gemini API stand-in that counts calls.
type fakeUpstream struct {
	server  *httptest.Server
	calls   atomic.Int32
	handler atomic.Value
}

func newFakeUpstream(h http.HandlerFunc) *fakeUpstream {
	f := &fakeUpstream{}
	f.handler.Store(h)
	f.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.calls.Add(1)
		f.handler.Load().(http.HandlerFunc)(w, r)
	}))
	return f
}

func sseHandler(texts ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		flusher, ok := w.(http.Flusher)
		Expect(ok).To(BeTrue())

		for _, t := range texts {
			fmt.Fprintf(w, "data: {\"candidates\":[{\"content\":{\"parts\":[{\"text\":%q}],\"role\":\"model\"}}]}\n\n", t)
			flusher.Flush()
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
		flusher.Flush()
	}
}

func jsonHandler(status int, body string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}
}

// newTestProxy creates a Proxy backed by a real gemini.Client pointed at upstreamURL.
func newTestProxy(cfg Config, upstreamURL, apiKey string, pub eventstream.Publisher) *Proxy {
	issuer := gemini.NewClient(gemini.Config{
		APIKey:  apiKey,
		BaseURL: upstreamURL,
		Model:   "test-model",
		SSE:     true,
	}, logger.Nop())

	p, err := New(cfg, issuer, pub, logger.Nop())
	Expect(err).NotTo(HaveOccurred())
	return p
}

func postChat(p *Proxy, route, body string) *http.Response {
	req := httptest.NewRequest(http.MethodPost, route, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := p.App().Test(req, -1)
	Expect(err).NotTo(HaveOccurred())
	return resp
}

// serve runs p on a loopback listener and returns its base URL.
func serve(p *Proxy) string {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	Expect(err).NotTo(HaveOccurred())

	go func() {
		defer GinkgoRecover()
		_ = p.RunWithListener(listener)
	}()

	return "http://" + listener.Addr().String()
}

// endlessHandler streams a record every 10ms until the request context ends,
// then closes cancelled.
func endlessHandler(cancelled chan struct{}) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		defer close(cancelled)
		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)

		for i := 0; ; i++ {
			fmt.Fprintf(w, "data: {\"candidates\":[{\"content\":{\"parts\":[{\"text\":\"x%d\"}]}}]}\n\n", i)
			flusher.Flush()

			select {
			case <-r.Context().Done():
				return
			case <-time.After(10 * time.Millisecond):
			}
		}
	}
}

func readBody(resp *http.Response) string {
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	Expect(err).NotTo(HaveOccurred())
	return string(b)
}

func decodeError(resp *http.Response) string {
	var e ErrorResponse
	Expect(json.Unmarshal([]byte(readBody(resp)), &e)).To(Succeed())
	return e.Error
}

var _ = Describe("Proxy", func() {
	var (
		p        *Proxy
		upstream *fakeUpstream
		pub      *memPublisher
	)

	BeforeEach(func() {
		pub = &memPublisher{}
		upstream = newFakeUpstream(sseHandler("Hi", " there"))
	})

	AfterEach(func() {
		if p != nil {
			p.Close()
		}
		upstream.server.Close()
	})

	Describe("New", func() {
		It("rejects an unknown mode", func() {
			_, err := New(Config{Mode: "batch"}, panicIssuer{}, pub, logger.Nop())
			Expect(err).To(MatchError(ContainSubstring("unknown mode")))
		})

		It("requires an issuer", func() {
			_, err := New(Config{}, nil, pub, logger.Nop())
			Expect(err).To(HaveOccurred())
		})

		It("defaults to stream mode", func() {
			p = newTestProxy(Config{}, upstream.server.URL, "key", pub)
			Expect(p.config.Mode).To(Equal(ModeStream))
		})
	})

	Context("in stream mode", func() {
		BeforeEach(func() {
			p = newTestProxy(Config{Mode: ModeStream}, upstream.server.URL, "key", pub)
		})

		It("streams concatenated fragments as plain text", func() {
			resp := postChat(p, "/api/chat", `{"prompt":"Hello"}`)

			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(resp.Header.Get("Content-Type")).To(Equal("text/plain; charset=utf-8"))
			Expect(readBody(resp)).To(Equal("Hi there"))
			Expect(upstream.calls.Load()).To(Equal(int32(1)))
		})

		It("serves every chat route alias", func() {
			for _, route := range ChatRoutes {
				resp := postChat(p, route, `{"prompt":"Hello"}`)
				Expect(resp.StatusCode).To(Equal(http.StatusOK), route)
				Expect(readBody(resp)).To(Equal("Hi there"), route)
			}
		})

		It("accepts file content without a prompt", func() {
			resp := postChat(p, "/api/analyze", `{"fileContent":"a,b\n1,2"}`)
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(readBody(resp)).To(Equal("Hi there"))
		})

		It("never leaks stream framing", func() {
			body := readBody(postChat(p, "/api/chat", `{"prompt":"Hello"}`))
			Expect(body).NotTo(ContainSubstring("data:"))
			Expect(body).NotTo(ContainSubstring("[DONE]"))
		})

		It("reports a generic error when upstream fails before streaming", func() {
			upstream.handler.Store(jsonHandler(http.StatusInternalServerError, `{"error":{"message":"internal detail"}}`))

			resp := postChat(p, "/api/chat", `{"prompt":"Hello"}`)
			Expect(resp.StatusCode).To(Equal(http.StatusInternalServerError))
			Expect(decodeError(resp)).To(Equal("Gemini API error"))
		})

		It("ends the body cleanly when upstream sends garbage", func() {
			upstream.handler.Store(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				_, _ = io.WriteString(w, "data: {broken\n\n")
				_, _ = io.WriteString(w, "data: {\"candidates\":[{\"content\":{\"parts\":[{\"text\":\"ok\"}]}}]}\n\n")
			}))

			resp := postChat(p, "/api/chat", `{"prompt":"Hello"}`)
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(readBody(resp)).To(Equal("ok"))
		})
	})

	Context("in single-shot mode", func() {
		BeforeEach(func() {
			upstream.handler.Store(jsonHandler(http.StatusOK, `{"candidates":[{"content":{"parts":[{"text":"Hello!"}]}}]}`))
			p = newTestProxy(Config{Mode: ModeSingleShot}, upstream.server.URL, "key", pub)
		})

		It("returns the reply as JSON", func() {
			resp := postChat(p, "/api/chat", `{"prompt":"Hi"}`)
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			var got ChatResponse
			Expect(json.Unmarshal([]byte(readBody(resp)), &got)).To(Succeed())
			Expect(got.Reply).To(Equal("Hello!"))
		})

		It("returns the fallback reply when upstream has no text", func() {
			upstream.handler.Store(jsonHandler(http.StatusOK, `{"candidates":[]}`))

			var got ChatResponse
			Expect(json.Unmarshal([]byte(readBody(postChat(p, "/api/chat", `{"prompt":"Hi"}`))), &got)).To(Succeed())
			Expect(got.Reply).To(Equal("No response generated."))
		})

		It("hides upstream error details", func() {
			upstream.handler.Store(jsonHandler(http.StatusBadRequest, `{"error":{"message":"secret detail"}}`))

			resp := postChat(p, "/api/chat", `{"prompt":"Hi"}`)
			Expect(resp.StatusCode).To(Equal(http.StatusInternalServerError))
			body := readBody(resp)
			Expect(body).To(MatchJSON(`{"error":"Gemini API error"}`))
			Expect(body).NotTo(ContainSubstring("secret detail"))
		})

		It("reports transport failures as a crash", func() {
			upstream.server.Close()

			resp := postChat(p, "/api/chat", `{"prompt":"Hi"}`)
			Expect(resp.StatusCode).To(Equal(http.StatusInternalServerError))
			Expect(decodeError(resp)).To(Equal("Server crashed"))
		})

		It("reports an undecodable upstream reply as a crash", func() {
			upstream.handler.Store(jsonHandler(http.StatusOK, `<html>`))

			resp := postChat(p, "/api/chat", `{"prompt":"Hi"}`)
			Expect(resp.StatusCode).To(Equal(http.StatusInternalServerError))
			Expect(decodeError(resp)).To(Equal("Server crashed"))
		})
	})

	Describe("validation", func() {
		for _, mode := range []string{ModeStream, ModeSingleShot} {
			Context("in "+mode+" mode", func() {
				BeforeEach(func() {
					p = newTestProxy(Config{Mode: mode}, upstream.server.URL, "key", pub)
				})

				It("rejects an empty request without calling upstream", func() {
					resp := postChat(p, "/api/chat", `{}`)
					Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
					Expect(decodeError(resp)).To(Equal("Prompt required"))
					Expect(upstream.calls.Load()).To(BeZero())
				})

				It("rejects whitespace-only fields", func() {
					resp := postChat(p, "/api/chat", `{"prompt":"   ","fileContent":"\n"}`)
					Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
					Expect(decodeError(resp)).To(Equal("Prompt required"))
				})

				It("treats an empty body as an empty request", func() {
					resp := postChat(p, "/api/chat", ``)
					Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
					Expect(decodeError(resp)).To(Equal("Prompt required"))
				})

				It("rejects an unparsable body", func() {
					resp := postChat(p, "/api/chat", `{"prompt":`)
					Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
					Expect(decodeError(resp)).To(Equal("Invalid request body"))
					Expect(upstream.calls.Load()).To(BeZero())
				})
			})
		}

		Context("without a credential", func() {
			BeforeEach(func() {
				p = newTestProxy(Config{}, upstream.server.URL, "", pub)
			})

			It("fails before calling upstream", func() {
				resp := postChat(p, "/api/chat", `{"prompt":"Hi"}`)
				Expect(resp.StatusCode).To(Equal(http.StatusInternalServerError))
				Expect(decodeError(resp)).To(Equal("Missing GEMINI_API_KEY"))
				Expect(upstream.calls.Load()).To(BeZero())
			})

			It("still checks content first", func() {
				resp := postChat(p, "/api/chat", `{}`)
				Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
				Expect(decodeError(resp)).To(Equal("Prompt required"))
			})
		})
	})

	Describe("panics", func() {
		It("recovers and reports a crash", func() {
			var err error
			p, err = New(Config{Mode: ModeSingleShot}, panicIssuer{}, pub, logger.Nop())
			Expect(err).NotTo(HaveOccurred())

			resp := postChat(p, "/api/chat", `{"prompt":"Hi"}`)
			Expect(resp.StatusCode).To(Equal(http.StatusInternalServerError))
			Expect(decodeError(resp)).To(Equal("Server crashed"))
		})
	})

	Describe("ambient routes", func() {
		BeforeEach(func() {
			p = newTestProxy(Config{Mode: ModeSingleShot}, upstream.server.URL, "key", pub)
		})

		It("reports health and mode", func() {
			resp, err := p.App().Test(httptest.NewRequest(http.MethodGet, "/healthz", nil), -1)
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(readBody(resp)).To(MatchJSON(`{"status":"ok","mode":"single-shot"}`))
		})

		It("sets a request ID on every response", func() {
			resp := postChat(p, "/api/chat", `{}`)
			Expect(resp.Header.Get("X-Request-ID")).NotTo(BeEmpty())
		})

		It("answers CORS preflight requests", func() {
			req := httptest.NewRequest(http.MethodOptions, "/api/chat", nil)
			req.Header.Set("Origin", "http://example.com")
			req.Header.Set("Access-Control-Request-Method", "POST")

			resp, err := p.App().Test(req, -1)
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusNoContent))
			Expect(resp.Header.Get("Access-Control-Allow-Origin")).To(Equal("*"))
		})

		It("exposes request counters", func() {
			readBody(postChat(p, "/api/chat", `{}`))
			upstream.handler.Store(jsonHandler(http.StatusOK, `{"candidates":[{"content":{"parts":[{"text":"Hello!"}]}}]}`))
			readBody(postChat(p, "/api/chat", `{"prompt":"Hi"}`))

			resp, err := p.App().Test(httptest.NewRequest(http.MethodGet, "/metrics", nil), -1)
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			var counters map[string]int64
			Expect(json.Unmarshal([]byte(readBody(resp)), &counters)).To(Succeed())
			Expect(counters).To(HaveKeyWithValue("requests", int64(2)))
			Expect(counters).To(HaveKeyWithValue("errors.validation", int64(1)))
			Expect(counters).To(HaveKeyWithValue("reply_bytes", int64(len("Hello!"))))
		})

		It("returns JSON for unknown routes", func() {
			resp, err := p.App().Test(httptest.NewRequest(http.MethodGet, "/nope", nil), -1)
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
			Expect(decodeError(resp)).NotTo(BeEmpty())
		})
	})

	Describe("static files", func() {
		It("serves the index file at / when a static dir is set", func() {
			dir := GinkgoT().TempDir()
			Expect(os.WriteFile(filepath.Join(dir, "AI.html"), []byte("<h1>chat</h1>"), 0o600)).To(Succeed())

			p = newTestProxy(Config{StaticDir: dir, IndexFile: "AI.html"}, upstream.server.URL, "key", pub)

			resp, err := p.App().Test(httptest.NewRequest(http.MethodGet, "/", nil), -1)
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(readBody(resp)).To(Equal("<h1>chat</h1>"))
		})
	})

	Describe("telemetry", func() {
		It("publishes one event per streamed request", func() {
			p = newTestProxy(Config{Mode: ModeStream, Model: "test-model"}, upstream.server.URL, "key", pub)

			resp := postChat(p, "/api/gemini", `{"prompt":"Hello"}`)
			Expect(readBody(resp)).To(Equal("Hi there"))

			// Drain the worker pool to ensure async publishing completes
			p.Close()
			p = nil

			events := pub.all()
			Expect(events).To(HaveLen(1))
			ev := events[0]
			Expect(ev.EventType).To(Equal(eventstream.EventTypeChatCompleted))
			Expect(ev.Request.Route).To(Equal("/api/gemini"))
			Expect(ev.Request.Mode).To(Equal(ModeStream))
			Expect(ev.Request.Model).To(Equal("test-model"))
			Expect(ev.Request.PromptChars).To(Equal(5))
			Expect(ev.Request.RequestID).NotTo(BeEmpty())
			Expect(ev.Outcome.HTTPStatus).To(Equal(http.StatusOK))
			Expect(ev.Outcome.ReplyBytes).To(Equal(len("Hi there")))
			Expect(ev.Outcome.Fragments).To(Equal(2))
			Expect(ev.Outcome.ErrorClass).To(BeEmpty())
		})

		It("publishes error classes", func() {
			p = newTestProxy(Config{Mode: ModeSingleShot}, upstream.server.URL, "", pub)

			readBody(postChat(p, "/api/chat", `{}`))
			readBody(postChat(p, "/api/chat", `{"prompt":"Hi"}`))

			p.Close()
			p = nil

			classes := []string{}
			for _, ev := range pub.all() {
				classes = append(classes, ev.Outcome.ErrorClass)
			}
			Expect(classes).To(ConsistOf("validation", "configuration"))
		})
	})

	Context("over a real connection", func() {
		var client *http.Client

		BeforeEach(func() {
			client = &http.Client{Timeout: 10 * time.Second}
		})

		post := func(url string) *http.Response {
			resp, err := client.Post(url+"/api/chat", "application/json", strings.NewReader(`{"prompt":"Hello"}`))
			Expect(err).NotTo(HaveOccurred())
			return resp
		}

		It("answers 200 with a chunked plain text body", func() {
			p = newTestProxy(Config{Mode: ModeStream}, upstream.server.URL, "key", pub)
			resp := post(serve(p))

			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(resp.TransferEncoding).To(ContainElement("chunked"))
			Expect(resp.Header.Get("Content-Type")).To(Equal("text/plain; charset=utf-8"))
			Expect(readBody(resp)).To(Equal("Hi there"))
		})

		It("cancels the upstream request when the client disconnects", func() {
			cancelled := make(chan struct{})
			upstream.handler.Store(endlessHandler(cancelled))
			p = newTestProxy(Config{Mode: ModeStream}, upstream.server.URL, "key", pub)
			resp := post(serve(p))
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			buf := make([]byte, 2)
			_, err := io.ReadFull(resp.Body, buf)
			Expect(err).NotTo(HaveOccurred())
			Expect(string(buf)).To(Equal("x0"))
			Expect(resp.Body.Close()).To(Succeed())

			Eventually(cancelled).WithTimeout(5 * time.Second).Should(BeClosed())
			Expect(upstream.calls.Load()).To(Equal(int32(1)))
		})
	})
})
