package mail

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"time"
)

//go:embed templates/*.html
var templatesFS embed.FS

var templates = template.Must(template.ParseFS(templatesFS, "templates/*.html"))

// Kind selects which OTP email to render.
type Kind string

const (
	KindVerifyEmail        Kind = "verify_email"
	KindResendVerification Kind = "resend_verification"
	KindResetPassword      Kind = "reset_password"
)

var subjects = map[Kind]string{
	KindVerifyEmail:        "OTP for Email Verification",
	KindResendVerification: "Email Verification",
	KindResetPassword:      "Password Reset OTP",
}

var headings = map[Kind]string{
	KindVerifyEmail:        "Email Verification",
	KindResendVerification: "Email Verification",
	KindResetPassword:      "Password Reset",
}

type otpData struct {
	Heading   string
	AppName   string
	Code      string
	ExpiresIn string
}

// OTPMessage renders the OTP email of the given kind for to.
func OTPMessage(kind Kind, appName, to, code string, ttl time.Duration) (Message, error) {
	subject, ok := subjects[kind]
	if !ok {
		return Message{}, fmt.Errorf("mail: unknown otp email kind %q", kind)
	}

	var buf bytes.Buffer
	err := templates.ExecuteTemplate(&buf, "otp", otpData{
		Heading:   headings[kind],
		AppName:   appName,
		Code:      code,
		ExpiresIn: humanDuration(ttl),
	})
	if err != nil {
		return Message{}, fmt.Errorf("mail: render %s: %w", kind, err)
	}

	return Message{To: to, Subject: subject, HTML: buf.String()}, nil
}

func humanDuration(d time.Duration) string {
	switch {
	case d >= time.Hour && d%time.Hour == 0:
		return plural(int(d/time.Hour), "hour")
	case d >= time.Minute:
		return plural(int(d/time.Minute), "minute")
	default:
		return plural(int(d/time.Second), "second")
	}
}

func plural(n int, unit string) string {
	if n == 1 {
		return "1 " + unit
	}
	return fmt.Sprintf("%d %ss", n, unit)
}
