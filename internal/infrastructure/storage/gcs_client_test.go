package storage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestChatFilePath(t *testing.T) {
	at := time.UnixMilli(1700000000123)

	assert.Equal(t, "chat_files/conv-1/1700000000123_report.pdf", ChatFilePath("conv-1", at, "report.pdf"))
	assert.Equal(t, "chat_files/conv-1/1700000000123_evil.pdf", ChatFilePath("conv-1", at, "../../evil.pdf"))
	assert.Equal(t, "chat_files/conv-1/1700000000123_scan.png", ChatFilePath("conv-1", at, `C:\Users\me\scan.png`))
	assert.Equal(t, "chat_files/conv-1/1700000000123_file", ChatFilePath("conv-1", at, ""))
}
