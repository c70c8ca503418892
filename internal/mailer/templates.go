package mailer

import "fmt"

func VerificationMessage(to, baseURL, token string) Message {
	return Message{
		To:      to,
		Subject: "Verify your email address",
		Text: fmt.Sprintf(
			"Welcome! Confirm your email address by opening this link:\n\n%s/v1/auth/verify-email?token=%s\n\nThe link expires in 24 hours.",
			baseURL, token),
	}
}

func PasswordResetMessage(to, baseURL, token string) Message {
	return Message{
		To:      to,
		Subject: "Reset your password",
		Text: fmt.Sprintf(
			"A password reset was requested for this address. Open the link below to choose a new password:\n\n%s/reset-password?token=%s\n\nThe link expires in 10 minutes. If you did not request this, ignore this message.",
			baseURL, token),
	}
}

func OTPMessage(to, code string) Message {
	return Message{
		To:      to,
		Subject: "Your sign-in code",
		Text: fmt.Sprintf(
			"Your one-time sign-in code is:\n\n%s\n\nIt expires in 5 minutes. Never share this code.",
			code),
	}
}
