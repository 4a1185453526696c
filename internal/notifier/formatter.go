package notifier

import (
	"fmt"
	"strings"
	"time"

	"CoinSentinel/internal/model"
	"CoinSentinel/internal/risk"
)

// FormatSignals formats the alerts surfaced in one scan.
func FormatSignals(signals []model.Signal, loc *time.Location) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("🚀 <b>CoinSentinel 放量突破</b> | %d 个信号\n", len(signals)))
	for i, s := range signals {
		b.WriteString(fmt.Sprintf("\n%d. <b>%s</b> %s\n", i+1, s.Symbol, s.Timeframe))
		b.WriteString(fmt.Sprintf("   价格: %s (%+.2f%%)\n", formatPrice(s.Price), s.PriceChange*100))
		b.WriteString(fmt.Sprintf("   成交量: %.0f / 基准 %.0f = <b>%.1fx</b>\n", s.Volume, s.Baseline, s.VolumeRatio))
		b.WriteString(fmt.Sprintf("   时间: %s\n", s.Time.In(loc).Format("2006-01-02 15:04")))
	}
	return b.String()
}

// FormatPullbacks formats pullback alerts surfaced in one scan.
func FormatPullbacks(pullbacks []model.Pullback, loc *time.Location) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("↩️ <b>CoinSentinel 突破回踩</b> | %d 个信号\n", len(pullbacks)))
	for i, p := range pullbacks {
		b.WriteString(fmt.Sprintf("\n%d. <b>%s</b> %s\n", i+1, p.Symbol, p.Timeframe))
		b.WriteString(fmt.Sprintf("   价格: %s, 距高点 %s 回调 %.1f%%\n", formatPrice(p.Price), formatPrice(p.RecentHigh), p.Retrace*100))
		b.WriteString(fmt.Sprintf("   RSI: %.1f | 量比: %.2fx\n", p.RSI, p.VolumeRatio))
		b.WriteString(fmt.Sprintf("   时间: %s\n", p.Time.In(loc).Format("2006-01-02 15:04")))
	}
	return b.String()
}

// FormatOpen formats an executed paper entry.
func FormatOpen(p *risk.Position, ratio float64) string {
	return fmt.Sprintf("🟢 <b>开仓 %s</b>\n价格: %s\n数量: %.6f\n金额: %.2f\n信号强度: %.1fx",
		p.Symbol, formatPrice(p.EntryPrice), p.Quantity, p.Cost(), ratio)
}

// FormatClose formats a close decision that was acted upon. cost is the cash
// the position reserved at entry, fees included.
func FormatClose(d model.CloseDecision, cost, proceeds float64) string {
	icon := "🔴"
	if d.PnL > 0 {
		icon = "🟢"
	}
	var b strings.Builder
	b.WriteString(fmt.Sprintf("%s <b>平仓 %s</b> | %s\n", icon, d.Symbol, d.Reason))
	b.WriteString(fmt.Sprintf("入场: %s → 出场: %s\n", formatPrice(d.EntryPrice), formatPrice(d.ExitPrice)))
	b.WriteString(fmt.Sprintf("收益: %+.2f%% (%.2f)\n", d.PnL*100, proceeds-cost))
	b.WriteString(fmt.Sprintf("持仓: %s\n", formatHeld(d.HeldFor)))
	return b.String()
}

// FormatPositions lists open positions.
func FormatPositions(positions []risk.Position, now time.Time) string {
	if len(positions) == 0 {
		return "📭 当前无持仓"
	}
	var b strings.Builder
	b.WriteString(fmt.Sprintf("📋 <b>持仓</b> (%d)\n", len(positions)))
	for _, p := range positions {
		b.WriteString(fmt.Sprintf("\n<b>%s</b> %+.2f%% (最高 %+.2f%%)\n", p.Symbol, p.PnL()*100, p.MaxProfit*100))
		b.WriteString(fmt.Sprintf("   入场 %s | 现价 %s | 持仓 %s\n",
			formatPrice(p.EntryPrice), formatPrice(p.CurrentPrice), formatHeld(p.HeldFor(now))))
		if p.TrailingActive {
			b.WriteString(fmt.Sprintf("   移动止损: %s\n", formatPrice(p.TrailingStopPrice)))
		}
	}
	return b.String()
}

// FormatSummary formats the portfolio and capital book.
func FormatSummary(s model.PortfolioSummary, state model.FundState) string {
	var b strings.Builder
	b.WriteString("📦 <b>账户概览</b>\n\n")
	b.WriteString(fmt.Sprintf("现金: %.2f\n", s.Cash))
	b.WriteString(fmt.Sprintf("持仓市值: %.2f (%d 个)\n", s.PositionValue, s.PositionCount))
	b.WriteString(fmt.Sprintf("总资产: %.2f\n", s.TotalValue))
	b.WriteString(fmt.Sprintf("仓位占比: %.1f%%\n", s.Exposure*100))
	if state.InitialCapital > 0 {
		b.WriteString(fmt.Sprintf("总收益: %+.2f%%\n", (s.TotalValue/state.InitialCapital-1)*100))
	}
	b.WriteString(fmt.Sprintf("已实现盈亏: %+.2f\n", state.RealizedPnL))
	if state.TradeCount > 0 {
		b.WriteString(fmt.Sprintf("交易 %d 笔, 胜率 %.0f%%\n", state.TradeCount,
			float64(state.WinCount)/float64(state.TradeCount)*100))
	}
	return b.String()
}

// formatPrice keeps significant digits for sub-cent coins.
func formatPrice(p float64) string {
	switch {
	case p >= 100:
		return fmt.Sprintf("%.2f", p)
	case p >= 1:
		return fmt.Sprintf("%.4f", p)
	default:
		return fmt.Sprintf("%.8g", p)
	}
}

func formatHeld(d time.Duration) string {
	h := int(d.Hours())
	if h >= 24 {
		return fmt.Sprintf("%dd%dh", h/24, h%24)
	}
	return fmt.Sprintf("%dh%dm", h, int(d.Minutes())%60)
}
