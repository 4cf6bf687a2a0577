/*
【ファイル概要: errors.go】
エンドポイント公開APIのエラー種別を提供します（§7 Error Handling Design）。

teacherの pkg/buffer/errors.go はフラットな `errPacketNotFound` 形式の
センチネルをそのまま返す（パニックしない）。本パッケージも同じ流儀で、
spec.md §7の表が定義する種別ごとに1つのセンチネルを用意し、
`errors.Is`で判定できるようにする。
*/
package rohc

import "errors"

var (
	// ErrMalformed: truncated header, bad IP version, SDVL overflow.
	ErrMalformed = errors.New("rohc: malformed packet")
	// ErrUnknownProfile: IR with profile id not in registry.
	ErrUnknownProfile = errors.New("rohc: unknown profile")
	// ErrNoContext: received non-IR for unknown CID.
	ErrNoContext = errors.New("rohc: no context for CID")
	// ErrCrcMismatch: header CRC fails after decode.
	ErrCrcMismatch = errors.New("rohc: CRC mismatch")
	// ErrOutputTooSmall: caller buffer insufficient.
	ErrOutputTooSmall = errors.New("rohc: output buffer too small")
	// ErrTransientResource: context table full at IR.
	ErrTransientResource = errors.New("rohc: transient resource exhaustion")
)
