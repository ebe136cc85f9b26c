package media

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

const TokenLen = 16

// GenerateToken derives a link token from the platform's unique file id and a
// fresh salt. The same media uploaded twice gets two different tokens.
func GenerateToken(fileUniqueID string) string {
	salt := strings.ReplaceAll(uuid.NewString(), "-", "")[:4]
	sum := md5.Sum([]byte(fmt.Sprintf("%s_%s", fileUniqueID, salt)))
	return hex.EncodeToString(sum[:])[:TokenLen]
}

// ValidToken checks the shape of a token before it is looked up.
func ValidToken(token string) bool {
	if len(token) != TokenLen {
		return false
	}
	for _, c := range token {
		if !(c >= '0' && c <= '9' || c >= 'a' && c <= 'f') {
			return false
		}
	}
	return true
}

// ShareLink is the deep link that makes the bot deliver the record.
func ShareLink(botUserName, token string) string {
	return fmt.Sprintf("https://t.me/%s?start=%s", botUserName, token)
}
