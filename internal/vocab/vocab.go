// Package vocab holds the ordered symbol sets the recognition models decode
// against. Order is part of the model contract: a trained head's class k maps
// to the k-1'th symbol of its set, with 0 reserved for the CTC blank.
package vocab

import (
	"fmt"
	"sort"
)

const (
	Digits       = "0123456789"
	ASCIILetters = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"
	Punctuation  = "!\"#$%&'()*+,-./:;<=>?@[\\]^_`{|}~"
	Currency     = "£€¥¢฿"

	Latin      = Digits + ASCIILetters + Punctuation
	English    = Latin + "°" + Currency
	French     = English + "àâéèêëîïôùûüçÀÂÉÈÊËÎÏÔÙÛÜÇ"
	German     = Latin + "äöüßÄÖÜ"
	Spanish    = English + "áéíóúüñÁÉÍÓÚÜÑ" + "¡¿"
	Portuguese = English + "áàâãéêíïóôõúüçÁÀÂÃÉÊÍÏÓÔÕÚÜÇ"
)

var sets = map[string]string{
	"digits":     Digits,
	"latin":      Latin,
	"english":    English,
	"french":     French,
	"german":     German,
	"spanish":    Spanish,
	"portuguese": Portuguese,
}

// Lookup resolves a named symbol set.
func Lookup(name string) (string, error) {
	s, ok := sets[name]
	if !ok {
		return "", fmt.Errorf("vocab: unknown set %q (have %v)", name, Names())
	}
	return s, nil
}

// Names lists the available sets in stable order.
func Names() []string {
	out := make([]string, 0, len(sets))
	for name := range sets {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
