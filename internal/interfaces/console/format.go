package console

import (
	"strconv"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// 低于该值的价格只保留一位有效数字
const minGroupedPrice = 0.001

var usd = message.NewPrinter(language.English)

// FormatUSD 26000.5 -> "$26,000.50"，0.000322 -> "$0.0003"，无效价格 -> "-"
func FormatUSD(price float64) string {
	switch {
	case price <= 0:
		return "-"
	case price < minGroupedPrice:
		return "$" + oneSignificantDigit(price)
	case price < 0.01:
		return usd.Sprintf("$%.3f", price)
	default:
		return usd.Sprintf("$%.2f", price)
	}
}

// oneSignificantDigit 0.0000322 -> "0.00003"，始终使用定点表示
func oneSignificantDigit(price float64) string {
	// 先按科学计数法舍入，得到舍入后的指数（0.00096 -> 1e-03）
	_, exp, _ := strings.Cut(strconv.FormatFloat(price, 'e', 0, 64), "e")
	e, err := strconv.Atoi(exp)
	if err != nil || e >= 0 {
		return strconv.FormatFloat(price, 'f', -1, 64)
	}
	return strconv.FormatFloat(price, 'f', -e, 64)
}
