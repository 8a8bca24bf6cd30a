package service

import (
	"encoding/base64"
	"strconv"

	appErrors "sudooom.im.chat/pkg/errors"
)

// EncodeCursor 游标格式为 base64(十进制消息 ID)，对客户端不透明
func EncodeCursor(id int64) string {
	return base64.StdEncoding.EncodeToString([]byte(strconv.FormatInt(id, 10)))
}

// DecodeCursor 解析游标，格式错误或 ID 非正返回 ErrInvalidParams
func DecodeCursor(cursor string) (int64, error) {
	raw, err := base64.StdEncoding.DecodeString(cursor)
	if err != nil {
		return 0, appErrors.ErrInvalidParams.WithMessage("游标格式错误")
	}
	id, err := strconv.ParseInt(string(raw), 10, 64)
	if err != nil || id <= 0 {
		return 0, appErrors.ErrInvalidParams.WithMessage("游标格式错误")
	}
	return id, nil
}
