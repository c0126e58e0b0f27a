// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package seproto

import (
	"fmt"
	"strings"
	"time"
)

// FormatMessage formats a message into a human-readable string
func FormatMessage(m Message, timestamp time.Time) string {
	result := fmt.Sprintf("[%s] %s (0x%04X) seq=%04X from=%08X to=%08X len=%d\n",
		timestamp.Format("15:04:05.000"), FunctionName(m.Function), m.Function, m.Seq, m.From, m.To, len(m.Data))

	if len(m.Data) > 0 {
		result += FormatHex(m.Data)
	}
	return result
}

// FormatHex renders data as an indented hex dump, 16 bytes per line
func FormatHex(data []byte) string {
	var sb strings.Builder
	sb.WriteString("  Data: ")
	for i, b := range data {
		if i > 0 && i%16 == 0 {
			sb.WriteString("\n        ")
		}
		fmt.Fprintf(&sb, "%02X ", b)
	}
	sb.WriteString("\n")
	return sb.String()
}

// FunctionName returns the symbolic name for a function code
func FunctionName(function uint16) string {
	switch function {
	// Miscellaneous
	case CmdMiscReset:
		return "PROT_CMD_MISC_RESET"
	case CmdMiscGetVer:
		return "PROT_CMD_MISC_GET_VER"
	case CmdMiscGetType:
		return "PROT_CMD_MISC_GET_TYPE"

	// Parameters
	case CmdParamsGetSingle:
		return "PROT_CMD_PARAMS_GET_SINGLE"
	case CmdParamsSetSingle:
		return "PROT_CMD_PARAMS_SET_SINGLE"

	// Firmware upgrade
	case CmdUpgradeStart:
		return "PROT_CMD_UPGRADE_START"
	case CmdUpgradeWrite:
		return "PROT_CMD_UPGRADE_WRITE"

	// Responses
	case RespAck:
		return "PROT_RESP_ACK"
	case RespNack:
		return "PROT_RESP_NACK"
	case RespMiscGetVer:
		return "PROT_RESP_MISC_GET_VER"
	case RespMiscGetType:
		return "PROT_RESP_MISC_GET_TYPE"
	case RespParamsSingle:
		return "PROT_RESP_PARAMS_SINGLE"
	case RespUpgradeSize:
		return "PROT_RESP_UPGRADE_SIZE"

	// Polestar
	case CmdPolestarGetStatus:
		return "PROT_CMD_POLESTAR_GET_STATUS"
	case CmdPolestarMasterGrant:
		return "PROT_CMD_POLESTAR_MASTER_GRANT"
	case CmdPolestarGetSOKStatus:
		return "PROT_CMD_POLESTAR_GET_S_OK_STATUS"
	case CmdPolestarGetOpMode:
		return "PROT_CMD_POLESTAR_GET_OPMODE"
	case RespPolestarGetStatus:
		return "PROT_RESP_POLESTAR_GET_STATUS"
	case RespPolestarGetSOKStatus:
		return "PROT_RESP_POLESTAR_GET_S_OK_STATUS"
	case RespPolestarMasterGrantAck:
		return "PROT_RESP_POLESTAR_MASTER_GRANT_ACK"

	// Server
	case CmdServerPostData:
		return "PROT_CMD_SERVER_POST_DATA"
	case CmdServerGetGMT:
		return "PROT_CMD_SERVER_GET_GMT"
	case CmdServerGetName:
		return "PROT_CMD_SERVER_GET_NAME"
	case RespServerGMT:
		return "PROT_RESP_SERVER_GMT"

	case FuncEncrypted1, FuncEncrypted2:
		return "ENCRYPTED"

	default:
		return "UNKNOWN"
	}
}
