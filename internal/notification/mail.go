package notification

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"net/url"
	"strings"
)

// Message is a rendered email.
type Message struct {
	ToEmail string
	ToName  string
	Subject string
	Text    string
	HTML    string
	// Kind labels the message for logs and metrics (role_changed, access_revoked, invited).
	Kind string
}

// Sender delivers a rendered message.
type Sender interface {
	Send(ctx context.Context, m Message) error
}

// MailNotifier renders notifications into email messages and hands them to a Sender.
type MailNotifier struct {
	sender  Sender
	baseURL string
}

// NewMailNotifier returns a Notifier that sends through sender. baseURL prefixes links in mail
// (e.g. the invitation accept page).
func NewMailNotifier(sender Sender, baseURL string) *MailNotifier {
	return &MailNotifier{sender: sender, baseURL: strings.TrimRight(baseURL, "/")}
}

var htmlLayout = template.Must(template.New("mail").Parse(
	`<html><body><h2>{{.Heading}}</h2><p>{{.Body}}</p>{{if .Link}}<p><a href="{{.Link}}">{{.LinkText}}</a></p>{{end}}</body></html>`))

type htmlView struct {
	Heading  string
	Body     string
	Link     string
	LinkText string
}

func renderHTML(v htmlView) (string, error) {
	var buf bytes.Buffer
	if err := htmlLayout.Execute(&buf, v); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// RoleChanged sends the role-change notice.
func (n *MailNotifier) RoleChanged(ctx context.Context, rc RoleChange) error {
	m, err := roleChangedMessage(rc)
	if err != nil {
		return err
	}
	return n.sender.Send(ctx, m)
}

// AccessRevoked sends the removal notice.
func (n *MailNotifier) AccessRevoked(ctx context.Context, ar AccessRevocation) error {
	m, err := accessRevokedMessage(ar)
	if err != nil {
		return err
	}
	return n.sender.Send(ctx, m)
}

// Invited sends the invitation with its accept link.
func (n *MailNotifier) Invited(ctx context.Context, inv Invite) error {
	m, err := invitedMessage(inv, n.acceptURL(inv.Token))
	if err != nil {
		return err
	}
	return n.sender.Send(ctx, m)
}

func (n *MailNotifier) acceptURL(token string) string {
	return n.baseURL + "/invitations/" + url.PathEscape(token)
}

func roleChangedMessage(rc RoleChange) (Message, error) {
	body := fmt.Sprintf("Your role in %s changed from %s to %s.", rc.OrgName, rc.OldRole, rc.NewRole)
	html, err := renderHTML(htmlView{Heading: "Your role changed", Body: body})
	if err != nil {
		return Message{}, err
	}
	return Message{
		Kind:    "role_changed",
		ToEmail: rc.Email,
		ToName:  rc.Name,
		Subject: fmt.Sprintf("Your role in %s is now %s", rc.OrgName, rc.NewRole),
		Text:    body,
		HTML:    html,
	}, nil
}

func accessRevokedMessage(ar AccessRevocation) (Message, error) {
	body := fmt.Sprintf("You no longer have access to %s.", ar.OrgName)
	html, err := renderHTML(htmlView{Heading: "Access removed", Body: body})
	if err != nil {
		return Message{}, err
	}
	return Message{
		Kind:    "access_revoked",
		ToEmail: ar.Email,
		ToName:  ar.Name,
		Subject: fmt.Sprintf("You were removed from %s", ar.OrgName),
		Text:    body,
		HTML:    html,
	}, nil
}

func invitedMessage(inv Invite, link string) (Message, error) {
	inviter := inv.InviterName
	if inviter == "" {
		inviter = "A teammate"
	}
	body := fmt.Sprintf("%s invited you to join %s as %s.", inviter, inv.OrgName, inv.Role)
	html, err := renderHTML(htmlView{Heading: "You're invited", Body: body, Link: link, LinkText: "Accept invitation"})
	if err != nil {
		return Message{}, err
	}
	return Message{
		Kind:    "invited",
		ToEmail: inv.Email,
		Subject: fmt.Sprintf("Join %s", inv.OrgName),
		Text:    body + "\n\nAccept: " + link,
		HTML:    html,
	}, nil
}
