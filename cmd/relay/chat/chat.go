// Package chatcmder provides the chat command for sending prompts through a
// running relay server.
package chatcmder

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/peterh/liner"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/papercomputeco/relay/pkg/cliui"
	"github.com/papercomputeco/relay/pkg/config"
	"github.com/papercomputeco/relay/pkg/dotdir"
	"github.com/papercomputeco/relay/pkg/gemini"
	"github.com/papercomputeco/relay/pkg/logger"
	"github.com/papercomputeco/relay/proxy"
)

var assistantPrompt = lipgloss.NewStyle().Foreground(lipgloss.Color("245")).Render("gemini> ")

// chatRoute is the relay route used by the chat command.
const chatRoute = "/api/chat"

type chatCommander struct {
	configDir string

	target string
	prompt string
	file   string
	render bool
	debug  bool

	in     io.Reader
	out    io.Writer
	errOut io.Writer

	client *http.Client
	logger *slog.Logger
}

const chatLongDesc string = `Send prompts through a running relay server.

With --prompt or --file a single request is sent and the reply printed.
Otherwise prompts are read from stdin, one per line, until EOF or /exit.

Streamed replies are printed as they arrive. With --render the reply is
collected first and rendered as markdown.

Examples:
  relay chat --prompt "Write a haiku about pipes"
  relay chat --file data.csv --prompt "Summarize this"
  relay chat --target http://localhost:3000`

const chatShortDesc string = "Chat through a running relay server"

func NewChatCmd() *cobra.Command {
	cmder := &chatCommander{}

	cmd := &cobra.Command{
		Use:   "chat",
		Short: chatShortDesc,
		Long:  chatLongDesc,
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			cmder.configDir, err = cmd.Flags().GetString("config-dir")
			if err != nil {
				return fmt.Errorf("could not get config-dir flag: %w", err)
			}

			v, err := config.InitViper(cmder.configDir)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}

			config.BindRegisteredFlags(v, cmd, config.ClientFlags, []string{config.FlagClientTarget})
			cmder.target = strings.TrimSuffix(config.FromViper(v).Client.Target, "/")
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			cmder.debug, err = cmd.Flags().GetBool("debug")
			if err != nil {
				return fmt.Errorf("could not get debug flag: %w", err)
			}

			cmder.in = cmd.InOrStdin()
			cmder.out = cmd.OutOrStdout()
			cmder.errOut = cmd.ErrOrStderr()

			return cmder.run(cmd.Context())
		},
	}

	config.AddStringFlag(cmd, config.ClientFlags, config.FlagClientTarget, &cmder.target)
	cmd.Flags().StringVarP(&cmder.prompt, "prompt", "p", "", "Send a single prompt and exit")
	cmd.Flags().StringVarP(&cmder.file, "file", "f", "", "Send the contents of a file as fileContent")
	cmd.Flags().BoolVarP(&cmder.render, "render", "r", false, "Render the reply as markdown")

	return cmd
}

func (c *chatCommander) run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	c.logger = logger.New(
		logger.WithDebug(c.debug),
		logger.WithFormat(logger.FormatPretty),
		logger.WithWriter(c.errOut),
	)
	c.client = &http.Client{
		// Replies can be slow
		Timeout: 5 * time.Minute,
	}

	if c.prompt != "" || c.file != "" {
		fileContent, err := c.readFile()
		if err != nil {
			return err
		}

		reply, err := c.send(ctx, gemini.ChatRequest{Prompt: c.prompt, FileContent: fileContent})
		if err != nil {
			return err
		}
		return c.print(reply)
	}

	return c.loop(ctx)
}

func (c *chatCommander) readFile() (string, error) {
	if c.file == "" {
		return "", nil
	}

	data, err := os.ReadFile(c.file)
	if err != nil {
		return "", fmt.Errorf("reading file: %w", err)
	}
	return string(data), nil
}

// loop reads one prompt per line until EOF or /exit. On a terminal the
// banner is shown and input gets line editing with persistent history.
func (c *chatCommander) loop(ctx context.Context) error {
	var lines lineReader
	if isTerminal(c.in) {
		fmt.Fprintf(c.out, "\n  %s %s\n",
			cliui.KeyStyle.Render("Relay:"),
			cliui.ValueStyle.Render(c.target),
		)
		fmt.Fprintf(c.out, "  %s\n\n", cliui.DimStyle.Render("Type your message and press Enter. /exit or Ctrl+D to quit."))
		lines = newLinerReader(c.historyPath(), c.logger)
		defer fmt.Fprintln(c.out)
	} else {
		lines = newScanReader(c.in)
	}
	defer lines.Close()

	for {
		input, err := lines.ReadLine()
		if errors.Is(err, io.EOF) || errors.Is(err, liner.ErrPromptAborted) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("reading input: %w", err)
		}

		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		if input == "/exit" {
			return nil
		}

		reply, err := c.send(ctx, gemini.ChatRequest{Prompt: input})
		if err != nil {
			fmt.Fprintf(c.errOut, "  %s %v\n", cliui.FailMark(), err)
			continue
		}

		if err := c.print(reply); err != nil {
			return err
		}
	}
}

// historyPath places chat_history in the resolved .relay directory, falling
// back to ~/.relay. An empty path disables history.
func (c *chatCommander) historyPath() string {
	loc, err := dotdir.Resolve(c.configDir)
	if err == nil && !loc.Found() {
		loc, err = dotdir.EnsureHome()
	}
	if err != nil {
		c.logger.Debug("chat history disabled", "error", err)
		return ""
	}
	return loc.Join(historyFile)
}

func isTerminal(r io.Reader) bool {
	f, ok := r.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// outputWidth is the terminal width of w, or 0 when w is not a terminal.
func outputWidth(w io.Writer) int {
	f, ok := w.(*os.File)
	if !ok {
		return 0
	}
	width, _, err := term.GetSize(int(f.Fd()))
	if err != nil {
		return 0
	}
	return width
}

// chatReply is the outcome of one exchange. When streamed is true the text
// has already been written to c.out.
type chatReply struct {
	text     string
	streamed bool
}

// send posts req to the relay. Streamed replies are copied to c.out as they
// arrive unless rendering is on, in which case the whole body is collected
// behind a spinner.
func (c *chatCommander) send(ctx context.Context, req gemini.ChatRequest) (chatReply, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return chatReply{}, fmt.Errorf("marshaling request: %w", err)
	}

	c.logger.Debug("sending chat request",
		"target", c.target,
		"prompt_chars", len([]rune(req.Prompt)),
		"file_content_chars", len([]rune(req.FileContent)),
	)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.target+chatRoute, bytes.NewReader(body))
	if err != nil {
		return chatReply{}, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	if !c.render {
		return c.exchange(httpReq)
	}

	var reply chatReply
	err = cliui.Step(c.errOut, "Waiting for reply", func() error {
		var err error
		reply, err = c.exchange(httpReq)
		return err
	})
	return reply, err
}

func (c *chatCommander) exchange(httpReq *http.Request) (chatReply, error) {
	resp, err := c.client.Do(httpReq)
	if err != nil {
		return chatReply{}, fmt.Errorf("sending request to relay: %w", err)
	}
	defer resp.Body.Close()

	c.logger.Debug("relay responded",
		"status", resp.StatusCode,
		"content_type", resp.Header.Get("Content-Type"),
		"request_id", resp.Header.Get("X-Request-ID"),
	)

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)

		var errResp proxy.ErrorResponse
		if json.Unmarshal(respBody, &errResp) == nil && errResp.Error != "" {
			return chatReply{}, fmt.Errorf("relay returned status %d: %s", resp.StatusCode, errResp.Error)
		}
		return chatReply{}, fmt.Errorf("relay returned status %d: %s", resp.StatusCode, string(respBody))
	}

	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		var chat proxy.ChatResponse
		if err := json.NewDecoder(resp.Body).Decode(&chat); err != nil {
			return chatReply{}, fmt.Errorf("decoding reply: %w", err)
		}
		return chatReply{text: chat.Reply}, nil
	}

	var full strings.Builder
	if c.render {
		if _, err := io.Copy(&full, resp.Body); err != nil {
			return chatReply{}, fmt.Errorf("reading stream: %w", err)
		}
		return chatReply{text: full.String()}, nil
	}

	fmt.Fprint(c.out, assistantPrompt)
	_, err = io.Copy(io.MultiWriter(c.out, &full), resp.Body)
	fmt.Fprint(c.out, "\n\n")
	if err != nil {
		return chatReply{text: full.String(), streamed: true}, fmt.Errorf("reading stream: %w", err)
	}

	return chatReply{text: full.String(), streamed: true}, nil
}

func (c *chatCommander) print(reply chatReply) error {
	if reply.streamed {
		return nil
	}

	text := reply.text
	if c.render {
		rendered, err := cliui.RenderMarkdown(text, outputWidth(c.out))
		if err != nil {
			c.logger.Debug("markdown render failed", "error", err)
		}
		fmt.Fprint(c.out, rendered)
		return nil
	}

	fmt.Fprintf(c.out, "%s%s\n\n", assistantPrompt, text)
	return nil
}
