package qwala

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// Ошибки клиента
var (
	ErrMalformedResponse = errors.New("malformed response")
	ErrEmptyArgument     = errors.New("argument must not be empty")
)

// CodeNotFound код ошибки сервиса для неизвестной или истёкшей ссылки
const CodeNotFound = "NOT_FOUND"

// ServiceError ошибка, которую вернул сам сервис (ответ не 2xx).
// Payload содержит вложенный объект "error" из тела ответа без изменений.
type ServiceError struct {
	StatusCode int
	Code       string
	Payload    json.RawMessage
	Body       []byte
}

func (e *ServiceError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("qwala: service error %d: %s", e.StatusCode, e.Code)
	}
	return fmt.Sprintf("qwala: service error %d", e.StatusCode)
}

// TransportError ошибка на пути до сервиса и обратно: соединение,
// таймаут, отмена контекста, нечитаемый ответ.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("qwala: %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// ValidationError обязательный аргумент не прошёл проверку, запрос не отправлялся
type ValidationError struct {
	Field string
	Err   error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("qwala: invalid %s: %v", e.Field, e.Err)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// IsNotFound сообщает, что сервис не знает такую короткую ссылку
func IsNotFound(err error) bool {
	var se *ServiceError
	if !errors.As(err, &se) {
		return false
	}
	return se.Code == CodeNotFound || se.StatusCode == http.StatusNotFound
}

// newServiceError разбирает тело ошибочного ответа. Если в теле есть поле
// "error", в Payload попадает именно оно, иначе всё тело целиком.
func newServiceError(status int, body []byte) *ServiceError {
	se := &ServiceError{StatusCode: status, Body: body}

	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return se
	}

	var envelope struct {
		Error json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal(trimmed, &envelope); err != nil || len(envelope.Error) == 0 {
		if json.Valid(trimmed) {
			se.Payload = json.RawMessage(trimmed)
		}
		return se
	}

	se.Payload = envelope.Error

	var code string
	if err := json.Unmarshal(envelope.Error, &code); err == nil {
		se.Code = code
		return se
	}

	var detail struct {
		Code string `json:"code"`
	}
	if err := json.Unmarshal(envelope.Error, &detail); err == nil {
		se.Code = detail.Code
	}

	return se
}

// isRetryable решает, стоит ли повторять запрос после ошибки.
// Отмена родительского контекста проверяется отдельно, в retry.
func isRetryable(err error) bool {
	var se *ServiceError
	if errors.As(err, &se) {
		return se.StatusCode == http.StatusTooManyRequests || se.StatusCode >= http.StatusInternalServerError
	}

	var te *TransportError
	if errors.As(err, &te) {
		return !errors.Is(te.Err, ErrMalformedResponse)
	}

	return false
}
