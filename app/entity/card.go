package entity

import "strings"

// Card carries the raw card fields received from the merchant. The raw number
// never leaves the service; read models only see the masked form.
type Card struct {
	Number string
	Expiry string
	CVV    string
}

func NewCard(number, expiry, cvv string) Card {
	return Card{
		Number: strings.TrimSpace(number),
		Expiry: strings.TrimSpace(expiry),
		CVV:    strings.TrimSpace(cvv),
	}
}

// MaskedNumber keeps the first group of four digits and replaces every other
// digit with 'X', preserving the original grouping.
// "4524 4587 5698 1200" -> "4524 XXXX XXXX XXXX".
func (c Card) MaskedNumber() string {
	groups := strings.Fields(c.Number)
	if len(groups) == 0 {
		return ""
	}
	masked := make([]string, 0, len(groups))
	masked = append(masked, groups[0])
	for _, group := range groups[1:] {
		masked = append(masked, strings.Repeat("X", len(group)))
	}
	return strings.Join(masked, " ")
}
