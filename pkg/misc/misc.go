package misc

import (
	"fmt"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var sizeSuffixes = [...]string{"B", "KiB", "MiB", "GiB", "TiB", "PiB"}

func FormatFileSize(bytes int64) string {
	size := float64(bytes)

	var suffixIndex int
	for size/1024 > 1 && suffixIndex < len(sizeSuffixes)-1 {
		size /= 1024
		suffixIndex++
	}

	res := []rune(fmt.Sprintf("%.2f", size))
	for i := len(res) - 1; i >= 0; i-- {
		if res[i] != '0' {
			if res[i] == '.' {
				i--
			}
			res = res[:i+1]
			break
		}
	}

	return string(res) + " " + sizeSuffixes[suffixIndex]
}

var countPrinter = message.NewPrinter(language.English)

// FormatCount formats n with thousands separators: 1234567 -> "1,234,567".
func FormatCount(n int64) string {
	return countPrinter.Sprintf("%d", n)
}
