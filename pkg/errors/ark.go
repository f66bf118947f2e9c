package errors

import (
	"net/http"

	"google.golang.org/grpc/codes"
)

// Connection lifecycle errors.
var (
	// ErrNoStoredConnection indicates no persisted connection has the requested id.
	ErrNoStoredConnection = NewNotFoundError(ServiceArk, 1).
				Kind("NoStoredConnection").
				Message("Stored connection not found", "未找到已保存的连接").
				MustBuild()

	// ErrNoCachedConnection indicates the connection is not currently connected.
	ErrNoCachedConnection = NewNotFoundError(ServiceArk, 2).
				Kind("NoCachedConnection").
				Disconnects().
				Message("Connection is not established", "连接未建立").
				MustBuild()

	// ErrBrokenShell indicates the shell session is unknown or its driver is gone.
	ErrBrokenShell = NewNotFoundError(ServiceArk, 3).
			Kind("BrokenShell").
			Message("Shell session is broken", "Shell 会话已失效").
			MustBuild()

	// ErrNoMemStoreEntry indicates the live cache has no entry for the id.
	ErrNoMemStoreEntry = NewNotFoundError(ServiceArk, 4).
				Kind("NoMemStoreEntry").
				Message("No live connection entry", "无活动连接条目").
				MustBuild()

	// ErrScriptNoEntity indicates the saved script does not exist.
	ErrScriptNoEntity = NewNotFoundError(ServiceArk, 5).
				Kind("ScriptNoEntity").
				Message("Script not found", "脚本不存在").
				MustBuild()
)

// Request errors.
var (
	// ErrInvalidMemStoreInput indicates a live cache entry was missing required parts.
	ErrInvalidMemStoreInput = NewRequestError(ServiceArk, 1).
				Kind("InvalidMemStoreInput").
				Message("Invalid live connection entry", "无效的活动连接条目").
				MustBuild()

	// ErrScriptInvalidInput indicates a script save request was incomplete.
	ErrScriptInvalidInput = NewRequestError(ServiceArk, 2).
				Kind("ScriptInvalidInput").
				Message("Invalid script input", "无效的脚本输入").
				MustBuild()

	// ErrInvalidAsyncHandler indicates a handler is not usable for the request.
	ErrInvalidAsyncHandler = NewRequestError(ServiceArk, 3).
				Kind("InvalidAsyncHandler").
				Message("Invalid request handler", "无效的请求处理器").
				MustBuild()

	// ErrUnknownCommand indicates the library/action pair is not registered.
	ErrUnknownCommand = NewRequestError(ServiceArk, 4).
				HTTP(http.StatusNotFound).
				GRPC(codes.Unimplemented).
				Kind("UnknownCommand").
				Message("Unknown command", "未知命令").
				MustBuild()

	// ErrInvalidConnectionConfig indicates a connection configuration failed validation.
	ErrInvalidConnectionConfig = NewRequestError(ServiceArk, 5).
					Kind("InvalidConnectionConfig").
					Message("Invalid connection configuration", "无效的连接配置").
					MustBuild()

	// ErrUnsupportedScript indicates the script uses a construct the runtime cannot evaluate.
	ErrUnsupportedScript = NewRequestError(ServiceArk, 6).
				Kind("UnsupportedScript").
				Message("Unsupported script", "不支持的脚本").
				MustBuild()
)

// Tunnel errors.
var (
	// ErrSSHTunnelClosed indicates the tunnel of a cached connection stopped listening.
	ErrSSHTunnelClosed = NewNetworkError(ServiceArk, 1).
				Kind("SSHTunnelClosed").
				Disconnects().
				Message("SSH tunnel is closed", "SSH 隧道已关闭").
				MustBuild()

	// ErrSSHTunnelConnection indicates the tunnel could not be established.
	ErrSSHTunnelConnection = NewNetworkError(ServiceArk, 2).
				Kind("SSHTunnelConnectionError").
				Disconnects().
				Message("SSH tunnel connection failed", "SSH 隧道连接失败").
				MustBuild()
)

// Credential errors.
var (
	// ErrKeyUnreadable indicates the encryption key could not be resolved.
	ErrKeyUnreadable = NewInternalError(ServiceArk, 1).
				Kind("KeyUnreadable").
				Message("Encryption key is unreadable", "无法读取加密密钥").
				MustBuild()

	// ErrDecryptionFailed indicates ciphertext, iv and key are inconsistent.
	ErrDecryptionFailed = NewInternalError(ServiceArk, 2).
				Kind("DecryptionFailed").
				Message("Decryption failed", "解密失败").
				MustBuild()
)
