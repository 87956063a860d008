// Package console is a terminal view of the interview. Answers are typed;
// the view drives either an in-process dispatcher or a remote daemon through
// the same request handler.
package console

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/nadzzz/kora/internal/interview"
	"github.com/nadzzz/kora/internal/message"
	"github.com/nadzzz/kora/internal/style"
)

// Handler runs one request. dispatch.Dispatcher.Handle and grpc.Client.Handle
// both satisfy it.
type Handler func(ctx context.Context, req *message.Request) (*message.Result, error)

// Console reads commands and answers from in and renders to out.
type Console struct {
	handle Handler
	in     *bufio.Scanner
	out    io.Writer
	banner []string
}

// New creates a Console.
func New(handle Handler, in io.Reader, out io.Writer) *Console {
	sc := bufio.NewScanner(in)
	sc.Buffer(make([]byte, 0, 64<<10), 1<<20)
	return &Console{handle: handle, in: sc, out: out}
}

// Banner adds a line printed before the interview, such as the follow-up
// provider status.
func (c *Console) Banner(line string) {
	c.banner = append(c.banner, line)
}

// Run drives interviews until input ends, the user quits or ctx is done.
func (c *Console) Run(ctx context.Context) error {
	c.printf("Kora 语音面试（控制台，文字作答）\n")
	for _, line := range c.banner {
		c.printf("%s\n", line)
	}
	c.printf("命令：/restart 重新开始，/quit 退出\n\n")

	res, err := c.do(ctx, &message.Request{Action: message.ActionSnapshot})
	if err != nil {
		return err
	}

	for {
		if err := ctx.Err(); err != nil {
			return nil
		}
		snap := res.Snapshot

		var next *message.Result
		switch snap.Phase {
		case interview.PhaseWelcome:
			next, err = c.welcome(ctx, snap)
		case interview.PhaseInterview:
			next, err = c.ask(ctx, snap)
		case interview.PhaseSummary:
			c.summary(snap)
			again, aerr := c.confirm("再来一次？(y/n) ")
			if aerr != nil || !again {
				return ignoreEOF(aerr)
			}
			next, err = c.do(ctx, &message.Request{Action: message.ActionRestart})
		default:
			return fmt.Errorf("unexpected phase %q", snap.Phase)
		}
		if errors.Is(err, errQuit) || errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		res = next
	}
}

var errQuit = errors.New("quit")

func (c *Console) welcome(ctx context.Context, snap interview.Snapshot) (*message.Result, error) {
	c.printf("请选择面试官风格：\n")
	styles := style.All()
	for i, s := range styles {
		marker := " "
		if s == snap.Style {
			marker = "*"
		}
		c.printf(" %s %d. %s\n", marker, i+1, s.Preset().Name)
	}

	line, err := c.prompt("风格编号（回车保持当前）：")
	if err != nil {
		return nil, err
	}
	if line != "" {
		chosen, perr := pickStyle(line, styles)
		if perr != nil {
			c.printf("%v\n", perr)
			return c.do(ctx, &message.Request{Action: message.ActionSnapshot})
		}
		if _, err := c.do(ctx, &message.Request{Action: message.ActionSelectStyle, Style: string(chosen)}); err != nil {
			c.printf("无法切换风格：%v\n", err)
		}
	}

	if !snap.TextMode {
		ok, err := c.confirm("控制台只能文字作答，确定切换到文字作答吗？(y/n) ")
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, errQuit
		}
		if _, err := c.do(ctx, &message.Request{Action: message.ActionToggleTextMode, Confirmed: true}); err != nil {
			c.printf("无法切换到文字作答：%v\n", err)
		}
	}

	return c.do(ctx, &message.Request{Action: message.ActionBegin})
}

func (c *Console) ask(ctx context.Context, snap interview.Snapshot) (*message.Result, error) {
	label := fmt.Sprintf("第 %d/%d 题", snap.CurrentIndex+1, len(snap.Items))
	if snap.SubSlot != interview.SlotMain {
		label += " · 追问"
	}
	c.printf("\n[%s] %s\n", label, snap.CurrentQuestion)

	line, err := c.prompt("> ")
	if err != nil {
		return nil, err
	}
	switch line {
	case "/quit":
		return nil, errQuit
	case "/restart":
		return c.do(ctx, &message.Request{Action: message.ActionRestart})
	}

	if snap.FollowupsEnabled && snap.SubSlot != interview.SlotFollowup2 {
		c.printf("正在生成追问…\n")
	}
	res, err := c.do(ctx, &message.Request{
		Action:       message.ActionSubmitAnswer,
		Text:         line,
		AnswerSource: string(interview.SourceText),
	})
	if err != nil {
		c.printf("提交失败：%v\n", err)
		return c.do(ctx, &message.Request{Action: message.ActionSnapshot})
	}
	return res, nil
}

func (c *Console) summary(snap interview.Snapshot) {
	c.printf("\n===== 面试总结 =====\n")
	for i, item := range snap.Items {
		c.printf("\n%d. %s\n   答：%s\n", i+1, item.Question, orEmpty(item.Answer))
		for _, f := range item.Followups {
			c.printf("   追问：%s\n   答：%s\n", f.Question, orEmpty(f.Answer))
		}
	}
	c.printf("\n")
}

// do runs a request. Refused actions come back as results with an error;
// only transport failures are returned as errors.
func (c *Console) do(ctx context.Context, req *message.Request) (*message.Result, error) {
	req.Source = "console"
	res, err := c.handle(ctx, req)
	if res == nil {
		if err == nil {
			err = errors.New("empty result")
		}
		return nil, err
	}
	if err != nil && req.Action != message.ActionSnapshot {
		c.printf("（%v）\n", err)
	}
	return res, nil
}

func (c *Console) prompt(p string) (string, error) {
	c.printf("%s", p)
	if !c.in.Scan() {
		if err := c.in.Err(); err != nil {
			return "", fmt.Errorf("reading input: %w", err)
		}
		return "", io.EOF
	}
	return strings.TrimSpace(c.in.Text()), nil
}

func (c *Console) confirm(p string) (bool, error) {
	line, err := c.prompt(p)
	if err != nil {
		return false, err
	}
	switch strings.ToLower(line) {
	case "y", "yes", "是", "好":
		return true, nil
	}
	return false, nil
}

func (c *Console) printf(format string, args ...any) {
	_, _ = fmt.Fprintf(c.out, format, args...)
}

func pickStyle(line string, styles []style.Style) (style.Style, error) {
	if n, err := strconv.Atoi(line); err == nil {
		if n < 1 || n > len(styles) {
			return "", fmt.Errorf("没有编号为 %d 的风格", n)
		}
		return styles[n-1], nil
	}
	return style.Parse(line)
}

func orEmpty(s string) string {
	if s == "" {
		return "（空）"
	}
	return s
}

func ignoreEOF(err error) error {
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}
