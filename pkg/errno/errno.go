package errno

// Errno defines the error code logic
type Errno struct {
	Code    int
	Message string
}

func (e Errno) Error() string {
	return e.Message
}

// Decode tries to convert an error to Errno
func Decode(err error) (int, string) {
	if err == nil {
		return OK.Code, OK.Message
	}

	switch typed := err.(type) {
	case *Errno:
		return typed.Code, typed.Message
	case Errno:
		return typed.Code, typed.Message
	default:
		return InternalServerError.Code, err.Error()
	}
}

// Common Errors
var (
	OK                  = Errno{Code: 0, Message: "Success"}
	InternalServerError = Errno{Code: 10001, Message: "Internal server error"}
	ErrBind             = Errno{Code: 10002, Message: "Error occurred while binding the request body to the struct"}
	ErrDatabase         = Errno{Code: 10004, Message: "Database error"}
)

// Business Errors (20000+)
var (
	ErrRequestNotFound     = Errno{Code: 20301, Message: "Withdrawal request not found"}
	ErrAlreadyResolved     = Errno{Code: 20302, Message: "Withdrawal request already resolved"}
	ErrInsufficientBalance = Errno{Code: 20303, Message: "Insufficient balance"}
	ErrInvalidAmount       = Errno{Code: 20304, Message: "Invalid withdrawal amount"}
	ErrInvalidAction       = Errno{Code: 20305, Message: "Unknown operator action"}
	ErrDuplicateRequest    = Errno{Code: 20306, Message: "Duplicate withdrawal request"}
	ErrAccountNotFound     = Errno{Code: 20307, Message: "Account not found"}
)
