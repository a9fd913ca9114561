// Package chunker 将抽取出的文本切分为带重叠的有界窗口。
//
// 切分策略：优先在最大的可用边界上断开（段落，其次句子，最后强制按
// 字符切），保证没有任何分块超过配置的窗口大小；相邻分块共享固定长度
// 的重叠以保留跨边界的上下文。窗口与重叠均按 rune 计数，与语言无关。
package chunker

import (
	"sort"
	"time"

	"github.com/google/uuid"

	"doc-chat-go/internal/model"
	"doc-chat-go/pkg/extract"
)

// Chunker 将文本段切分为 Chunk 并盖上出处元数据。
type Chunker struct {
	windowSize int
	overlap    int
}

// New 创建一个 Chunker。overlap 必须小于 windowSize，否则回退到默认值。
func New(windowSize, overlap int) *Chunker {
	if windowSize <= 0 {
		windowSize = 800
	}
	if overlap < 0 || overlap >= windowSize {
		overlap = 100
		if overlap >= windowSize {
			overlap = windowSize / 8
		}
	}
	return &Chunker{windowSize: windowSize, overlap: overlap}
}

// Split 将有序文本段切分为有序 Chunk 序列。
// 每个段先做一次空白归一化；清洗后为空的段被静默跳过，不算错误。
// 每个产出的分块都带有新生成的 chunk_id、namespace、文件名和创建时间。
func (c *Chunker) Split(sections []extract.Section, filename, namespace string) []model.Chunk {
	var chunks []model.Chunk
	for _, sec := range sections {
		text := CleanText(sec.Text)
		if text == "" {
			continue
		}
		for _, window := range c.splitText(text) {
			chunks = append(chunks, model.Chunk{
				ChunkID:      uuid.NewString(),
				Text:         window,
				Namespace:    namespace,
				Filename:     filename,
				CreatedAt:    time.Now().UTC(),
				SourceOffset: sec.Offset,
			})
		}
	}
	return chunks
}

// splitText 将单段清洗后的文本切分为若干窗口。
// 每个窗口都是原文本的连续子串；除（罕见的）退化情形外，
// 下一个窗口恰好从上一个窗口结束位置回退 overlap 处开始，
// 因此去掉重叠后顺序拼接能精确还原输入。
func (c *Chunker) splitText(text string) []string {
	runes := []rune(text)
	if len(runes) <= c.windowSize {
		return []string{text}
	}

	paraBounds, sentBounds := boundaries(runes)

	var windows []string
	start := 0
	for {
		end := start + c.windowSize
		if end >= len(runes) {
			windows = append(windows, string(runes[start:]))
			break
		}

		// 在 (start, start+windowSize] 内寻找最大的段落边界；
		// 找不到再尝试句子边界；都没有则强制在窗口上限切开。
		if cut := pickBoundary(paraBounds, start, end); cut > 0 {
			end = cut
		} else if cut := pickBoundary(sentBounds, start, end); cut > 0 {
			end = cut
		}
		windows = append(windows, string(runes[start:end]))

		next := end - c.overlap
		if next <= start {
			// 窗口比重叠还短的退化情形，放弃重叠以保证前进。
			next = end
		}
		start = next
	}
	return windows
}

// boundaries 返回文本中所有段落边界与句子边界的 rune 下标。
// 边界值 b 表示"在 b 之前断开"，分隔符归属前一个分块。
func boundaries(runes []rune) (para, sent []int) {
	for i := 1; i < len(runes); i++ {
		if runes[i-1] == '\n' {
			if i >= 2 && runes[i-2] == '\n' {
				para = append(para, i)
			} else {
				sent = append(sent, i)
			}
			continue
		}
		if isSentenceEnd(runes[i-1]) && (runes[i] == ' ' || runes[i] == '\n') {
			sent = append(sent, i+1)
		}
	}
	return para, sent
}

func isSentenceEnd(r rune) bool {
	switch r {
	case '.', '!', '?', '。', '！', '？':
		return true
	}
	return false
}

// pickBoundary 返回 (start, limit] 区间内最大的边界，找不到返回 -1。
func pickBoundary(bounds []int, start, limit int) int {
	// bounds 递增，找最后一个 <= limit 的元素
	i := sort.SearchInts(bounds, limit+1) - 1
	if i >= 0 && bounds[i] > start && bounds[i] <= limit {
		return bounds[i]
	}
	return -1
}
