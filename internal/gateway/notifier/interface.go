package notifier

import "context"

// TextNotifier 是运营者聊天通知的最小接口，dispatch 只依赖它而不依赖 Telegram 实现。
type TextNotifier interface {
	SendText(ctx context.Context, text string) error
}

// Noop discards every message; used when no chat channel is configured.
type Noop struct{}

func (Noop) SendText(context.Context, string) error { return nil }
