// Package extract 提供了一个与 Apache Tika 服务器交互的文本抽取客户端。
package extract

import (
	"bytes"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"strings"

	"doc-chat-go/internal/config"
)

// 支持抽取的文件扩展名。
var supportedExts = map[string]struct{}{
	".pdf":  {},
	".doc":  {},
	".docx": {},
	".txt":  {},
}

// IsSupportedFile 判断文件名对应的类型是否可抽取。
func IsSupportedFile(filename string) bool {
	_, ok := supportedExts[strings.ToLower(filepath.Ext(filename))]
	return ok
}

// Section 是抽取产出的一段有序文本。
// Offset 是该段在原始文件中的位置（页或节的序号）。
type Section struct {
	Text   string
	Offset int
}

// Client 是 Tika 服务器的客户端。
type Client struct {
	serverURL  string
	httpClient *http.Client
}

// NewClient 创建一个新的抽取客户端实例。
func NewClient(cfg config.TikaConfig) *Client {
	return &Client{
		serverURL:  cfg.ServerURL,
		httpClient: http.DefaultClient,
	}
}

// ExtractSections 调用 Tika 提取文本，并按分页符切分为有序段落。
// Tika 的 text/plain 输出以 \f 分隔 PDF 页；无分页符时整体作为单段返回。
func (c *Client) ExtractSections(fileReader io.Reader, fileName string) ([]Section, error) {
	contentType := detectMimeType(fileName)

	req, err := http.NewRequest("PUT", c.serverURL+"/tika", fileReader)
	if err != nil {
		return nil, fmt.Errorf("创建请求失败: %w", err)
	}

	req.Header.Set("Accept", "text/plain")
	req.Header.Set("Content-Type", contentType)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("调用 Tika 失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("Tika 返回错误 [%d]: %s", resp.StatusCode, string(body))
	}

	buf := new(bytes.Buffer)
	if _, err := io.Copy(buf, resp.Body); err != nil {
		return nil, fmt.Errorf("读取 Tika 响应失败: %w", err)
	}

	return SplitPages(buf.String()), nil
}

// SplitPages 将抽取文本按分页符 \f 切分为有序 Section。
func SplitPages(text string) []Section {
	pages := strings.Split(text, "\f")
	sections := make([]Section, 0, len(pages))
	for i, p := range pages {
		sections = append(sections, Section{Text: p, Offset: i})
	}
	return sections
}

// detectMimeType 根据文件扩展名判断 Content-Type。
func detectMimeType(fileName string) string {
	ext := filepath.Ext(fileName)
	if ext == "" {
		return "application/octet-stream"
	}
	mimeType := mime.TypeByExtension(ext)
	if mimeType == "" {
		return "application/octet-stream"
	}
	return mimeType
}
