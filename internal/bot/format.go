// internal/bot/format.go
package bot

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"goldencobra/internal/spending"
)

// FormatStars renders an amount with comma thousand separators and drops
// a zero fractional part: 1500 -> "1,500", 1500.5 -> "1,500.50".
func FormatStars(d decimal.Decimal) string {
	neg := d.IsNegative()
	s := d.Abs().StringFixed(2)
	intPart, frac, _ := strings.Cut(s, ".")

	var b strings.Builder
	if neg {
		b.WriteByte('-')
	}
	for i, c := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(c)
	}
	if frac != "00" {
		b.WriteByte('.')
		b.WriteString(frac)
	}
	return b.String()
}

// displayName is how a user appears in listings.
func displayName(u *spending.User, position int) string {
	if u.DisplayName != "" {
		return "@" + u.DisplayName
	}
	return fmt.Sprintf("Пользователь %d", position)
}

// position is the leaderboard marker: a crown for the leader, a number otherwise.
func position(i int) string {
	if i == 1 {
		return "👑"
	}
	return fmt.Sprintf("%d.", i)
}
