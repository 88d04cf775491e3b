package shortcode

import (
	"errors"
	"math"
	"strings"
)

const alphabet = "0123456789abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"

// codes are at least this long so early ids don't produce one-letter paths
const MinLength = 4

// longest code a positive int64 can encode to
const maxLength = 11

var ErrInvalid = errors.New("shortcode: invalid code")

// encodes a positive id as a base62 short code, left-padded to MinLength
func Encode(id int64) string {
	if id <= 0 {
		return ""
	}

	var buf [maxLength]byte
	i := len(buf)

	for n := uint64(id); n > 0; n /= 62 {
		i--
		buf[i] = alphabet[n%62]
	}

	code := string(buf[i:])
	if len(code) < MinLength {
		code = strings.Repeat(string(alphabet[0]), MinLength-len(code)) + code
	}

	return code
}

// decodes a code produced by Encode back into its id
func Decode(code string) (int64, error) {
	if code == "" || len(code) > maxLength {
		return 0, ErrInvalid
	}

	var n uint64
	for i := 0; i < len(code); i++ {
		d := strings.IndexByte(alphabet, code[i])
		if d < 0 {
			return 0, ErrInvalid
		}

		if n > (math.MaxInt64-uint64(d))/62 {
			return 0, ErrInvalid
		}
		n = n*62 + uint64(d)
	}

	if n == 0 {
		return 0, ErrInvalid
	}

	return int64(n), nil
}

// reports whether code only uses base62 characters and has a sane length
func Valid(code string) bool {
	_, err := Decode(code)
	return err == nil
}
