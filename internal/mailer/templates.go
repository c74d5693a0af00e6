package mailer

import (
	"bytes"
	"html/template"
)

const (
	subjectVerify       = "Verify Your Email - Chatty"
	subjectReset        = "Password Reset Request"
	subjectResetSuccess = "Password Reset Successful"
)

var (
	verifyTemplate = template.Must(template.New("verify").Parse(`<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif; color: #333;">
  <h2>Verify your email</h2>
  <p>Use the code below to finish creating your Chatty account:</p>
  <p style="font-size: 28px; font-weight: bold; letter-spacing: 6px;">{{.Code}}</p>
  <p>The code expires in 15 minutes. If you did not sign up, ignore this email.</p>
</body>
</html>`))

	resetTemplate = template.Must(template.New("reset").Parse(`<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif; color: #333;">
  <h2>Reset your password</h2>
  <p>We received a request to reset your password. Click the link below to choose a new one:</p>
  <p><a href="{{.Link}}">Reset password</a></p>
  <p>The link expires in one hour. If you did not ask for this, ignore this email.</p>
</body>
</html>`))

	resetSuccessTemplate = template.Must(template.New("reset-success").Parse(`<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif; color: #333;">
  <h2>Password changed</h2>
  <p>Your Chatty password was reset successfully. You can now log in with the new password.</p>
</body>
</html>`))
)

func render(t *template.Template, data interface{}) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
