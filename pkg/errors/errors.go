// Unified error handling for the NexMotion controller
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package errors

import (
	stderrors "errors"
	"fmt"
	"runtime"
)

// Code is the closed NexMotion return code. Zero means success, every
// failure is negative.
type Code int32

const (
	Success Code = 0

	// Library and runtime loading
	ExternalLibraryNotFound   Code = -1
	ApiNotFound               Code = -2
	LoadExternalLibraryFailed Code = -3
	LoadRuntimeFailed         Code = -4

	// File access
	FileNotFound            Code = -5
	FileOpenFailed          Code = -6
	FileLoadFailed          Code = -7
	FileBadFormat           Code = -8
	FileReadProhibit        Code = -9
	FileWriteProhibit       Code = -10
	FileVersionIncompatible Code = -11

	// Runtime
	OpenupRuntimeFailed                Code = -12
	RuntimeVersionIncompatible         Code = -13
	ExternalRuntimeVersionIncompatible Code = -14
	OutOfSystemResources               Code = -15
	ExternalCallFailed                 Code = -16

	// Lifecycle
	SystemNotInitialization Code = -21
	SystemClosedDenied      Code = -22
	OperationDenied         Code = -23
	PermissionDenied        Code = -24
	UnexpectedException     Code = -25
	SystemNotReady          Code = -26
	OperationBusy           Code = -27
	WaitFailed              Code = -28

	// Timeouts
	ProcessTimeout         Code = -31
	RuntimeResponseTimeout Code = -32

	// Parameters
	ObjectIdInvalid        Code = -41
	ParameterNumberInvalid Code = -42
	ParameterValueInvalid  Code = -43
	ParameterReadOnly      Code = -44
	AccessAreaInvalid      Code = -45
	PointerNull            Code = -46
	QueueEmpty             Code = -47
	StructSizeIncompatible Code = -48

	// Kinematics
	InitialAxisPositionInvalid Code = -100
	InverseKinematicsFailed    Code = -101
	IKOverAxisLimit            Code = -102
	IKSingular                 Code = -103
	KinematicsTypeInvalid      Code = -104
	AxisCountInvalid           Code = -105
	GroupCountInvalid          Code = -106
	AxisMappingInvalid         Code = -107
	KinematicsParameterInvalid Code = -108

	// Safety
	EmergencyStopActive     Code = -109
	EnableSwitchFullPressed Code = -110
	SafeGuardActive         Code = -111
	SafetyError             Code = -112
)

var descriptions = map[Code]string{
	Success:                            "success",
	ExternalLibraryNotFound:            "external library not found",
	ApiNotFound:                        "API not found",
	LoadExternalLibraryFailed:          "load external library failed",
	LoadRuntimeFailed:                  "load runtime failed",
	FileNotFound:                       "file not found",
	FileOpenFailed:                     "file open failed",
	FileLoadFailed:                     "file load failed",
	FileBadFormat:                      "file bad format",
	FileReadProhibit:                   "file read prohibited",
	FileWriteProhibit:                  "file write prohibited",
	FileVersionIncompatible:            "file version incompatible",
	OpenupRuntimeFailed:                "open up runtime failed",
	RuntimeVersionIncompatible:         "runtime version incompatible",
	ExternalRuntimeVersionIncompatible: "external runtime version incompatible",
	OutOfSystemResources:               "out of system resources",
	ExternalCallFailed:                 "external call failed",
	SystemNotInitialization:            "system not initialized",
	SystemClosedDenied:                 "system closed, operation denied",
	OperationDenied:                    "operation denied",
	PermissionDenied:                   "permission denied",
	UnexpectedException:                "unexpected exception",
	SystemNotReady:                     "system not ready",
	OperationBusy:                      "operation busy",
	WaitFailed:                         "wait failed",
	ProcessTimeout:                     "process timeout",
	RuntimeResponseTimeout:             "runtime response timeout",
	ObjectIdInvalid:                    "object id invalid",
	ParameterNumberInvalid:             "parameter number invalid",
	ParameterValueInvalid:              "parameter value invalid",
	ParameterReadOnly:                  "parameter is read only",
	AccessAreaInvalid:                  "access area invalid",
	PointerNull:                        "pointer is null",
	QueueEmpty:                         "queue empty",
	StructSizeIncompatible:             "struct size incompatible",
	InitialAxisPositionInvalid:         "initial axis position invalid",
	InverseKinematicsFailed:            "inverse kinematics failed",
	IKOverAxisLimit:                    "inverse kinematics over axis limit",
	IKSingular:                         "inverse kinematics singular",
	KinematicsTypeInvalid:              "kinematics type invalid",
	AxisCountInvalid:                   "axis count invalid",
	GroupCountInvalid:                  "group count invalid",
	AxisMappingInvalid:                 "axis mapping invalid",
	KinematicsParameterInvalid:         "kinematics parameter invalid",
	EmergencyStopActive:                "emergency stop active",
	EnableSwitchFullPressed:            "enable switch full pressed",
	SafeGuardActive:                    "safe guard active",
	SafetyError:                        "safety error",
}

// Description returns the text for a return code.
func Description(code Code) string {
	if d, ok := descriptions[code]; ok {
		return d
	}
	return fmt.Sprintf("unknown error %d", int32(code))
}

// Known reports whether code belongs to the closed table.
func Known(code Code) bool {
	_, ok := descriptions[code]
	return ok
}

func (c Code) String() string {
	return Description(c)
}

// Error is the error type returned by every controller operation
type Error struct {
	// Code is the NexMotion return code
	Code Code

	// Message is a human-readable error description
	Message string

	// Op is the API operation that failed
	Op string

	// Object names the addressed object, e.g. "axis 3"
	Object string

	// Err wraps the underlying error
	Err error
}

// Error implements the error interface
func (e *Error) Error() string {
	s := fmt.Sprintf("[%d]", int32(e.Code))
	if e.Op != "" {
		s += " " + e.Op
	}
	if e.Object != "" {
		s += " (" + e.Object + ")"
	}
	msg := e.Message
	if msg == "" {
		msg = Description(e.Code)
	}
	s += ": " + msg
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Err
}

// SetOp sets the failing operation
func (e *Error) SetOp(op string) *Error {
	e.Op = op
	return e
}

// SetObject sets the addressed object
func (e *Error) SetObject(format string, args ...interface{}) *Error {
	e.Object = fmt.Sprintf(format, args...)
	return e
}

// New creates a new Error
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf creates a new Error with a formatted message
func Newf(code Code, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap wraps an existing error with a return code
func Wrap(err error, code Code, message string) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// Common constructors

func Denied(format string, args ...interface{}) *Error {
	return Newf(OperationDenied, format, args...)
}

func InvalidValue(format string, args ...interface{}) *Error {
	return Newf(ParameterValueInvalid, format, args...)
}

func InvalidObject(kind string, index int) *Error {
	return Newf(ObjectIdInvalid, "%s %d does not exist", kind, index).SetObject("%s %d", kind, index)
}

func Busy(format string, args ...interface{}) *Error {
	return Newf(OperationBusy, format, args...)
}

// CodeOf extracts the return code of err. A nil error is Success and an
// error without a code is UnexpectedException.
func CodeOf(err error) Code {
	if err == nil {
		return Success
	}
	var e *Error
	if stderrors.As(err, &e) {
		return e.Code
	}
	return UnexpectedException
}

// As finds the first *Error in the chain of err
func As(err error) (*Error, bool) {
	var e *Error
	ok := stderrors.As(err, &e)
	return e, ok
}

// Is checks if err carries the given code
func Is(err error, code Code) bool {
	return err != nil && CodeOf(err) == code
}

// FromPanic converts a recovered panic value into an Error. Call it from a
// deferred function: if r := recover(); r != nil { err = FromPanic(r) }.
func FromPanic(r interface{}) *Error {
	switch x := r.(type) {
	case runtime.Error:
		return Wrap(x, UnexpectedException, "panic")
	case error:
		return Wrap(x, UnexpectedException, "panic")
	default:
		return Newf(UnexpectedException, "panic: %v", x)
	}
}

// IsLifecycle checks if err is a lifecycle error
func IsLifecycle(err error) bool {
	c := CodeOf(err)
	return c <= SystemNotInitialization && c >= WaitFailed
}

// IsParameter checks if err is a parameter error
func IsParameter(err error) bool {
	c := CodeOf(err)
	return c <= ObjectIdInvalid && c >= StructSizeIncompatible
}

// IsKinematics checks if err is a kinematics error
func IsKinematics(err error) bool {
	c := CodeOf(err)
	return c <= InitialAxisPositionInvalid && c >= KinematicsParameterInvalid
}

// IsSafety checks if err is a safety error
func IsSafety(err error) bool {
	c := CodeOf(err)
	return c <= EmergencyStopActive && c >= SafetyError
}
