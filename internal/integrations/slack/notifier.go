// Package slacknotify posts analysis alerts to a Slack channel.
package slacknotify

import (
	"context"
	"fmt"
	"strings"

	"github.com/slack-go/slack"
	"go.uber.org/zap"

	"contextanalyzer/internal/domain"
)

// Notifier alerts a channel about critical-impact analyses. A Notifier
// without token or channel is disabled and every call is a no-op.
type Notifier struct {
	api     *slack.Client
	channel string
	logger  *zap.Logger
}

func New(token, channel string, logger *zap.Logger, opts ...slack.Option) *Notifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	n := &Notifier{channel: strings.TrimSpace(channel), logger: logger}
	if strings.TrimSpace(token) != "" && n.channel != "" {
		n.api = slack.New(token, opts...)
	}
	return n
}

func (n *Notifier) Enabled() bool { return n != nil && n.api != nil }

// ShouldNotify reports whether a result warrants an alert.
func ShouldNotify(result domain.HybridAnalysisResult) bool {
	return result.BusinessImpact == domain.ImpactCritical
}

// NotifyAnalysis posts a summary when the result is critical.
func (n *Notifier) NotifyAnalysis(ctx context.Context, title string, result domain.HybridAnalysisResult) error {
	if !n.Enabled() || !ShouldNotify(result) {
		return nil
	}
	blocks := analysisBlocks(title, result)
	_, ts, err := n.api.PostMessageContext(ctx, n.channel,
		slack.MsgOptionText(fallbackText(title, result), false),
		slack.MsgOptionBlocks(blocks...),
	)
	if err != nil {
		n.logger.Warn("slack notify failed", zap.String("analysis_id", result.AnalysisID), zap.Error(err))
		return fmt.Errorf("post slack message: %w", err)
	}
	n.logger.Info("slack notified",
		zap.String("analysis_id", result.AnalysisID),
		zap.String("channel", n.channel),
		zap.String("ts", ts),
	)
	return nil
}

func fallbackText(title string, result domain.HybridAnalysisResult) string {
	return fmt.Sprintf("Critical issue: %s (%s)", title, result.Category.Label())
}

func analysisBlocks(title string, result domain.HybridAnalysisResult) []slack.Block {
	header := slack.NewHeaderBlock(
		slack.NewTextBlockObject(slack.PlainTextType, ":rotating_light: Critical issue analysed", false, false),
	)
	body := fmt.Sprintf("*%s*\n*Category:* %s\n*Intent:* %s\n*Confidence:* %.0f%% (%s)",
		escape(title), result.Category.Label(), strings.ReplaceAll(string(result.Intent), "_", " "),
		result.Confidence*100, result.Source)
	if r := strings.TrimSpace(result.Reasoning); r != "" {
		body += "\n*Reasoning:* " + escape(r)
	}
	blocks := []slack.Block{
		header,
		slack.NewSectionBlock(slack.NewTextBlockObject(slack.MarkdownType, body, false, false), nil, nil),
	}
	if len(result.SimilarIssues) > 0 {
		var lines []string
		for _, s := range result.SimilarIssues {
			lines = append(lines, fmt.Sprintf("• %s (%.0f%%)", escape(s.Title), s.Similarity*100))
		}
		blocks = append(blocks, slack.NewSectionBlock(
			slack.NewTextBlockObject(slack.MarkdownType, "*Similar issues:*\n"+strings.Join(lines, "\n"), false, false),
			nil, nil,
		))
	}
	footer := fmt.Sprintf("analysis %s", result.AnalysisID)
	if result.AIError != "" {
		footer += " | AI unavailable, pattern result"
	}
	blocks = append(blocks, slack.NewContextBlock("",
		slack.NewTextBlockObject(slack.MarkdownType, footer, false, false),
	))
	return blocks
}

// escape neutralises Slack's control characters in user text.
func escape(s string) string {
	return strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;").Replace(s)
}
