package notify

import "html/template"

const layoutHead = `<!DOCTYPE html>
<html>
<head>
<meta charset="UTF-8">
<style>
body { font-family: Arial, sans-serif; background-color: #f4f4f4; margin: 0; padding: 20px; }
.container { max-width: 600px; margin: 0 auto; background-color: #ffffff; padding: 20px; border-radius: 8px; }
.header { text-align: center; padding: 10px 0; border-bottom: 1px solid #dddddd; }
.content { padding: 20px 0; }
.footer { text-align: center; padding: 10px 0; border-top: 1px solid #dddddd; font-size: 12px; color: #999999; }
.button { display: inline-block; padding: 10px 20px; margin-top: 20px; font-size: 16px; color: #ffffff; background-color: #007bff; text-decoration: none; border-radius: 5px; }
</style>
</head>
<body>
<div class="container">
`

const layoutFoot = `
<div class="footer"><p>&copy; Sterling Dispute Portal. All rights reserved.</p></div>
</div>
</body>
</html>`

var accountCreatedTmpl = template.Must(template.New("account_created").Parse(layoutHead + `
<div class="header"><h1>Welcome to the Dispute Portal</h1></div>
<div class="content">
<p>Hello,</p>
<p>An admin has created an account for you on our dispute portal. Please use the link below to set your password:</p>
<p><a href="{{.Link}}" class="button">Set Your Password</a></p>
<p>If you did not request this email, please ignore it.</p>
<p>Your email: {{.Email}}</p>
</div>
` + layoutFoot))

var disputeCreatedTmpl = template.Must(template.New("dispute_created").Parse(layoutHead + `
<div class="header"><h1>Dispute Created Successfully</h1></div>
<div class="content">
<p>Hello,</p>
<p>Your dispute has been created successfully. Please find your tracking ID below:</p>
<p><strong>Tracking ID: {{.TrackingID}}</strong></p>
<p>You can use this ID to track the status of your dispute.</p>
<p>If you did not request this dispute, please contact support.</p>
</div>
` + layoutFoot))

var replyPostedTmpl = template.Must(template.New("reply_posted").Parse(layoutHead + `
<div class="header"><h1>New Comment on Your Dispute</h1></div>
<div class="content">
<p>Hello,</p>
<p>A new comment has been added to the dispute with the following details:</p>
<p><strong>Dispute Tracking ID: {{.TrackingID}}</strong></p>
<p><strong>Comment:</strong> {{.Reply}}</p>
<p><strong>Replied By:</strong> {{.Replier}}</p>
<p>If you have any questions or need further assistance, please contact support.</p>
</div>
` + layoutFoot))
