package utils

import (
	"fmt"
	"net/smtp"
	"scormhub/config"
	"strings"
)

// Generic Send Email
func SendEmail(to []string, subject string, htmlBody string) error {
	smtpHost := "smtp.gmail.com"
	smtpPort := "587"

	from := config.AppConfig.EmailSender
	password := config.AppConfig.Password

	if from == "" {
		// Email disabled; treat as a no-op so callers can fire and forget
		return nil
	}

	// MIME basics
	msg := "MIME-version: 1.0;\nContent-Type: text/html; charset=\"UTF-8\";\n"
	msg += fmt.Sprintf("From: ScormHub <%s>\r\n", from)
	msg += fmt.Sprintf("To: %s\r\n", strings.Join(to, ","))
	msg += fmt.Sprintf("Subject: %s\r\n\r\n", subject)
	msg += htmlBody

	auth := smtp.PlainAuth("", from, password, smtpHost)

	err := smtp.SendMail(smtpHost+":"+smtpPort, auth, from, to, []byte(msg))
	if err != nil {
		fmt.Println("Error sending email:", err)
		return err
	}
	return nil
}

func getEmailTemplate(title string, bodyContent string) string {
	return fmt.Sprintf(`
	<!DOCTYPE html>
	<html>
	<head>
		<style>
			body { font-family: 'Helvetica Neue', Helvetica, Arial, sans-serif; background-color: #F6F6F6; margin: 0; padding: 0; }
			.container { max-width: 600px; margin: 40px auto; background: #FFFFFF; border-radius: 8px; overflow: hidden; box-shadow: 0 4px 15px rgba(0,0,0,0.05); }
			.header { background-color: #00004D; padding: 30px; text-align: center; }
			.header h1 { color: #FFFFFF; margin: 0; font-size: 24px; letter-spacing: 1px; }
			.content { padding: 40px 30px; color: #00004D; line-height: 1.6; }
			.content h2 { color: #00004D; margin-top: 0; }
			.footer { background-color: #F6F6F6; padding: 20px; text-align: center; font-size: 12px; color: #666666; border-top: 1px solid #E0E0E0; }
			.info-box { background: #E8F0FE; padding: 15px; border-radius: 4px; border-left: 4px solid #d7b56d; margin: 20px 0; }
		</style>
	</head>
	<body>
		<div class="container">
			<div class="header">
				<h1>ScormHub</h1>
			</div>
			<div class="content">
				<h2>%s</h2>
				%s
			</div>
			<div class="footer">
				This is an automated message from ScormHub.
			</div>
		</div>
	</body>
	</html>
	`, title, bodyContent)
}

// SendPackageReadyEmail tells the uploader their package finished ingesting
func SendPackageReadyEmail(email, userName, packageTitle, launchURL string) error {
	body := fmt.Sprintf(`
		<p>Hi %s,</p>
		<p>Your content package has finished processing and is ready for learners:</p>
		<div class="info-box"><strong>%s</strong><br/>Launch URL: %s</div>
		<p>You can manage the package from the admin panel.</p>
	`, userName, packageTitle, launchURL)

	return SendEmail([]string{email}, "Your package is ready - ScormHub", getEmailTemplate("Package Ready", body))
}

// SendPackageFailedEmail tells the uploader their package could not be ingested
func SendPackageFailedEmail(email, userName, filename, errorCode, errorMessage string) error {
	body := fmt.Sprintf(`
		<p>Hi %s,</p>
		<p>We could not process your uploaded package <strong>%s</strong>.</p>
		<div class="info-box"><strong>%s</strong><br/>%s</div>
		<p>Please fix the package and upload it again.</p>
	`, userName, filename, errorCode, errorMessage)

	return SendEmail([]string{email}, "Package processing failed - ScormHub", getEmailTemplate("Package Failed", body))
}
