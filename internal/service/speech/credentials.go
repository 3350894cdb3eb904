package speech

import (
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/zhouzirui/z-voice/internal/config"
)

// ErrMissingVolcengineCredentials 表示缺少 AppID 或 AccessToken。
var ErrMissingVolcengineCredentials = errors.New("volcengine speech: SPEECH_APP_ID and SPEECH_ACCESS_TOKEN are required")

// resolveCredentials 返回规范化后的 AppID 与 AccessToken。
func resolveCredentials(cfg config.SpeechConfig) (string, string, error) {
	appID := strings.TrimSpace(cfg.AppID)
	token := strings.TrimSpace(cfg.AccessToken)
	if token == "" {
		token = strings.TrimSpace(cfg.APIKey)
	}
	if appID == "" || token == "" {
		return "", "", ErrMissingVolcengineCredentials
	}
	return appID, token, nil
}

func volcengineHeaders(appID, token, resourceID string) (http.Header, string) {
	connectID := uuid.NewString()
	header := http.Header{}
	header.Set("X-Api-App-Key", appID)
	header.Set("X-Api-Access-Key", token)
	header.Set("X-Api-Resource-Id", resourceID)
	header.Set("X-Api-Connect-Id", connectID)
	return header, connectID
}
