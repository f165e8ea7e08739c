package keys

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"

	"secure-pastebox/internal/constants"
)

// ErrEntropy 隨機來源失效.
var ErrEntropy = errors.New("entropy source failure")

// rejectionLimit 小於此值的位元組才會被採用，避免取模偏差.
const rejectionLimit = 256 - 256%len(constants.KeyIDAlphabet)

// GenerateID 使用 crypto/rand 產生識別碼.
func GenerateID() (string, error) {
	return GenerateIDFrom(rand.Reader)
}

// GenerateIDFrom 從指定隨機來源均勻抽取字元集內的符號.
func GenerateIDFrom(r io.Reader) (string, error) {
	alphabet := constants.KeyIDAlphabet
	id := make([]byte, 0, constants.KeyIDLength)
	buf := make([]byte, constants.KeyIDLength*2)

	for len(id) < constants.KeyIDLength {
		if _, err := io.ReadFull(r, buf); err != nil {
			return "", fmt.Errorf("%w: %v", ErrEntropy, err)
		}
		for _, b := range buf {
			if int(b) >= rejectionLimit {
				continue
			}
			id = append(id, alphabet[int(b)%len(alphabet)])
			if len(id) == constants.KeyIDLength {
				break
			}
		}
	}
	return string(id), nil
}

// ValidID 檢查識別碼是否符合產生器的格式.
func ValidID(id string) bool {
	if len(id) != constants.KeyIDLength {
		return false
	}
	for i := 0; i < len(id); i++ {
		if !isAlphabet(id[i]) {
			return false
		}
	}
	return true
}

func isAlphabet(c byte) bool {
	return (c >= '0' && c <= '9') || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}
