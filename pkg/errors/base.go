package errors

// Kinds shared by every layer.
var (
	ErrBadRequest = NewRequestError(ServiceCommon, 0).
			Kind("BadRequest").
			Message("Bad request", "请求错误").
			MustBuild()

	ErrInvalidParam = NewRequestError(ServiceCommon, 1).
			Kind("InvalidParam").
			Message("Invalid parameter", "参数无效").
			MustBuild()

	// ErrNotFound is returned by the local store for a missing record.
	// Services translate it into a domain kind before it reaches the UI.
	ErrNotFound = NewNotFoundError(ServiceCommon, 0).
			Kind("NotFound").
			Message("Resource not found", "资源不存在").
			MustBuild()

	ErrInternal = NewInternalError(ServiceCommon, 0).
			Kind("Internal").
			Message("Internal server error", "服务器内部错误").
			MustBuild()

	// ErrDatabase wraps failures of the local store or of a MongoDB command.
	ErrDatabase = NewBuilder(ServiceCommon, CategoryDatabase, 0).
			Kind("Database").
			Message("Database error", "数据库错误").
			MustBuild()

	ErrNetwork = NewNetworkError(ServiceCommon, 0).
			Kind("Network").
			Message("Network error", "网络错误").
			MustBuild()
)
