package app

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/hitoshi/fkt/internal/facto"
)

// ErrConclusiveFacto はcheckで1件以上の記述が拒否された場合のエラー。
var ErrConclusiveFacto = errors.New("conclusive terms found")

type checkResult struct {
	Descricao string `json:"descricao"`
	OK        bool   `json:"ok"`
	Term      string `json:"term,omitempty"`
	Message   string `json:"message,omitempty"`
}

// runCheck は記述ごとの検証結果をJSON Linesでoutに書き出す。
// textsが空の場合はinから1行1記述で読み込み、空行は無視する。
func runCheck(in io.Reader, out io.Writer, texts []string) error {
	if len(texts) == 0 {
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			if line := strings.TrimSpace(scanner.Text()); line != "" {
				texts = append(texts, line)
			}
		}
		if err := scanner.Err(); err != nil {
			return fmt.Errorf("failed to read descriptions: %w", err)
		}
	}

	enc := json.NewEncoder(out)
	rejected := 0
	for _, text := range texts {
		res := facto.Validate(text)
		if !res.OK {
			rejected++
		}
		if err := enc.Encode(checkResult{
			Descricao: text,
			OK:        res.OK,
			Term:      res.Term,
			Message:   res.Message,
		}); err != nil {
			return fmt.Errorf("failed to write result: %w", err)
		}
	}

	if rejected > 0 {
		return fmt.Errorf("%w: %d of %d", ErrConclusiveFacto, rejected, len(texts))
	}
	return nil
}
