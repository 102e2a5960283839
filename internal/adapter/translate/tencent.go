package translate

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/tencentcloud/tencentcloud-sdk-go/tencentcloud/common"
	tcerrors "github.com/tencentcloud/tencentcloud-sdk-go/tencentcloud/common/errors"
	"github.com/tencentcloud/tencentcloud-sdk-go/tencentcloud/common/profile"
	tmt "github.com/tencentcloud/tencentcloud-sdk-go/tencentcloud/tmt/v20180321"

	applog "github.com/Therqwq/ATRI-Chat/internal/platform/log"
)

// TencentConfig 腾讯云机器翻译配置
type TencentConfig struct {
	SecretID  string
	SecretKey string
	Region    string // 默认 ap-beijing
	Source    string // 默认 zh
	Target    string // 默认 ja
	TimeoutS  int    // 请求超时秒数，默认 5
}

// Tencent 基于腾讯云 TMT 的翻译实现。
// 瞬时超时类失败允许重试一次，其余错误直接返回由调用方降级。
type Tencent struct {
	client *tmt.Client
	source string
	target string
}

// ErrEmptyResult 翻译服务返回空结果
var ErrEmptyResult = errors.New("translate: empty result")

// NewTencent 创建腾讯云翻译客户端
func NewTencent(cfg TencentConfig) (*Tencent, error) {
	if cfg.Region == "" {
		cfg.Region = "ap-beijing"
	}
	if cfg.Source == "" {
		cfg.Source = "zh"
	}
	if cfg.Target == "" {
		cfg.Target = "ja"
	}
	if cfg.TimeoutS <= 0 {
		cfg.TimeoutS = 5
	}

	credential := common.NewCredential(cfg.SecretID, cfg.SecretKey)
	cpf := profile.NewClientProfile()
	cpf.HttpProfile.ReqTimeout = cfg.TimeoutS

	client, err := tmt.NewClient(credential, cfg.Region, cpf)
	if err != nil {
		return nil, fmt.Errorf("create tmt client: %w", err)
	}

	applog.Info("[Translate/TMT] Client initialized",
		"region", cfg.Region,
		"source", cfg.Source,
		"target", cfg.Target,
	)

	return &Tencent{
		client: client,
		source: cfg.Source,
		target: cfg.Target,
	}, nil
}

// Translate 翻译文本，瞬时超时重试一次。
func (t *Tencent) Translate(ctx context.Context, text string) (string, error) {
	result, err := t.translateOnce(ctx, text)
	if err == nil {
		return result, nil
	}

	if !isTransientTimeout(err) {
		return "", err
	}

	applog.Warn("[Translate/TMT] ⚠️ Transient timeout, retrying once", "error", err)
	return t.translateOnce(ctx, text)
}

func (t *Tencent) translateOnce(ctx context.Context, text string) (string, error) {
	req := tmt.NewTextTranslateRequest()
	req.SourceText = common.StringPtr(text)
	req.Source = common.StringPtr(t.source)
	req.Target = common.StringPtr(t.target)
	req.ProjectId = common.Int64Ptr(0)

	resp, err := t.client.TextTranslateWithContext(ctx, req)
	if err != nil {
		return "", fmt.Errorf("tmt TextTranslate: %w", err)
	}

	if resp.Response == nil || resp.Response.TargetText == nil || *resp.Response.TargetText == "" {
		return "", ErrEmptyResult
	}
	return *resp.Response.TargetText, nil
}

// isTransientTimeout 判断是否为可重试的瞬时超时类错误
func isTransientTimeout(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var sdkErr *tcerrors.TencentCloudSDKError
	if errors.As(err, &sdkErr) {
		switch sdkErr.Code {
		case "RequestLimitExceeded", "InternalError.RequestTimeout":
			return true
		}
	}

	// SDK 部分路径只透出字符串
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "timeout") || strings.Contains(msg, "deadline exceeded")
}
