package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/kvistad/parley/internal/chat"
	"github.com/kvistad/parley/internal/models"
	"github.com/kvistad/parley/internal/session"
	"github.com/kvistad/parley/internal/wire"
	"github.com/spf13/cobra"
)

func newChatCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Interactive console clients",
	}

	cmd.AddCommand(newChatAgentCmd())
	cmd.AddCommand(newChatCustomerCmd())
	return cmd
}

func newChatAgentCmd() *cobra.Command {
	var (
		serverURL string
		username  string
		password  string
	)

	cmd := &cobra.Command{
		Use:   "agent",
		Short: "Connect as the support agent",
		Long: `Connects as the support agent. Incoming messages from the selected
customer appear inline; messages from other customers raise a one-line
notification. Console commands:

  /list          list customers
  /select <id>   open a customer's conversation
  /close         close the current conversation
  /quit          exit

Anything else is sent to the selected customer.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChatAgent(cmd, serverURL, username, password)
		},
	}

	cmd.Flags().StringVarP(&serverURL, "server", "s", "http://localhost:8084", "broker base URL")
	cmd.Flags().StringVarP(&username, "user", "u", "support", "agent login name")
	cmd.Flags().StringVarP(&password, "password", "p", "", "password (prompted when omitted)")
	return cmd
}

func newChatCustomerCmd() *cobra.Command {
	var (
		serverURL string
		username  string
		password  string
	)

	cmd := &cobra.Command{
		Use:   "customer",
		Short: "Connect as a customer",
		Long: `Connects as a customer. The conversation with the support agent opens
immediately with its history; anything typed is sent to the agent.
/quit exits.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChatCustomer(cmd, serverURL, username, password)
		},
	}

	cmd.Flags().StringVarP(&serverURL, "server", "s", "http://localhost:8084", "broker base URL")
	cmd.Flags().StringVarP(&username, "user", "u", "", "customer login name (required)")
	cmd.Flags().StringVarP(&password, "password", "p", "", "password (prompted when omitted)")
	cmd.MarkFlagRequired("user")
	return cmd
}

// brokerWSURL derives the websocket endpoint from the REST base URL.
func brokerWSURL(serverURL string) string {
	ws := strings.TrimRight(serverURL, "/")
	ws = strings.Replace(ws, "https://", "wss://", 1)
	ws = strings.Replace(ws, "http://", "ws://", 1)
	return ws + "/ws"
}

// login authenticates against the broker, prompting for the password when
// none was given on the command line.
func login(api *chat.API, username, password string) (chat.Identity, error) {
	if password == "" {
		var err error
		password, err = promptPassword(fmt.Sprintf("Password for %s: ", username))
		if err != nil {
			return chat.Identity{}, err
		}
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return api.Login(ctx, username, password)
}

// printState writes connection transitions so the console always shows
// whether the live channel is up.
func printState(out io.Writer) func(session.StateChange) {
	return func(sc session.StateChange) {
		switch sc.State {
		case session.StateConnected:
			fmt.Fprintln(out, "[connected]")
		case session.StateReconnecting:
			fmt.Fprintln(out, "[connection lost, retrying]")
		case session.StateDisconnected:
			if sc.Err != nil {
				fmt.Fprintf(out, "[disconnected: %v]\n", sc.Err)
			}
		}
	}
}

func printMessage(out io.Writer, localID uint) func(wire.Message) {
	return func(m wire.Message) {
		name := m.SenderName
		if m.SenderID == localID {
			name = "you"
		}
		fmt.Fprintf(out, "%s %s: %s\n", m.Timestamp.Local().Format("15:04"), name, m.Content)
	}
}

func runChatAgent(cmd *cobra.Command, serverURL, username, password string) error {
	out := cmd.OutOrStdout()
	api := chat.NewAPI(serverURL)

	identity, err := login(api, username, password)
	if err != nil {
		return err
	}
	if identity.Role != models.RoleAgent {
		return fmt.Errorf("%s is not the agent account", username)
	}
	fmt.Fprintf(out, "Logged in as %s (agent)\n", identity.DisplayName)

	client, err := chat.NewAgentClient(chat.ClientOpts{
		BrokerURL:     brokerWSURL(serverURL),
		Token:         api.Token(),
		Identity:      identity,
		Backend:       api,
		OnStateChange: printState(out),
		OnMessage:     printMessage(out, identity.ID),
		OnNotify: func(n chat.Notification) {
			fmt.Fprintf(out, "*** %s: %s\n", n.SenderName, n.Content)
		},
	})
	if err != nil {
		return err
	}
	defer client.Stop()

	ctx := cmd.Context()
	if err := client.Start(ctx); err != nil {
		return err
	}

	scanner := bufio.NewScanner(cmd.InOrStdin())
	fmt.Fprintln(out, "Type /list to see customers, /select <id> to talk, /quit to exit.")
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
			continue
		case line == "/quit":
			return nil
		case line == "/list":
			if err := listCustomers(ctx, out, client); err != nil {
				fmt.Fprintf(out, "list customers: %v\n", err)
			}
		case line == "/close":
			client.Selector().Clear()
			fmt.Fprintln(out, "Conversation closed.")
		case strings.HasPrefix(line, "/select "):
			if err := selectCustomer(ctx, out, client, strings.TrimPrefix(line, "/select ")); err != nil {
				fmt.Fprintf(out, "select: %v\n", err)
			}
		default:
			sendLine(ctx, out, client, line)
		}
	}
	return scanner.Err()
}

func runChatCustomer(cmd *cobra.Command, serverURL, username, password string) error {
	out := cmd.OutOrStdout()
	api := chat.NewAPI(serverURL)

	identity, err := login(api, username, password)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Logged in as %s\n", identity.DisplayName)

	ctx := cmd.Context()
	agent, err := api.Agent(ctx)
	if err != nil {
		return err
	}

	client, err := chat.NewCustomerClient(chat.ClientOpts{
		BrokerURL:     brokerWSURL(serverURL),
		Token:         api.Token(),
		Identity:      identity,
		Backend:       api,
		AgentID:       agent.ID,
		OnStateChange: printState(out),
		OnMessage:     printMessage(out, identity.ID),
	})
	if err != nil {
		return err
	}
	defer client.Stop()

	if err := client.Start(ctx); err != nil {
		return err
	}
	for _, m := range client.Store().Messages() {
		printMessage(out, identity.ID)(m)
	}
	fmt.Fprintf(out, "Talking to %s. /quit to exit.\n", agent.DisplayName)

	scanner := bufio.NewScanner(cmd.InOrStdin())
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "/quit" {
			return nil
		}
		sendLine(ctx, out, client, line)
	}
	return scanner.Err()
}

func listCustomers(ctx context.Context, out io.Writer, client *chat.Client) error {
	customers, err := client.Customers(ctx)
	if err != nil {
		return err
	}
	if len(customers) == 0 {
		fmt.Fprintln(out, "No customers registered.")
		return nil
	}
	for _, c := range customers {
		fmt.Fprintf(out, "  %d  %s (%s)\n", c.ID, c.DisplayName, c.Username)
	}
	return nil
}

func selectCustomer(ctx context.Context, out io.Writer, client *chat.Client, arg string) error {
	id, err := strconv.ParseUint(strings.TrimSpace(arg), 10, 32)
	if err != nil {
		return fmt.Errorf("invalid customer id %q", arg)
	}
	customers, err := client.Customers(ctx)
	if err != nil {
		return err
	}
	for _, c := range customers {
		if c.ID == uint(id) {
			if err := client.Selector().Select(ctx, c); err != nil {
				return err
			}
			fmt.Fprintf(out, "--- %s ---\n", c.DisplayName)
			for _, m := range client.Store().Messages() {
				printMessage(out, client.Identity().ID)(m)
			}
			return nil
		}
	}
	return fmt.Errorf("no customer with id %d", id)
}

// sendLine sends one typed line. On failure the draft stays in the composer
// and the console says so instead of pretending the message went out.
func sendLine(ctx context.Context, out io.Writer, client *chat.Client, line string) {
	client.Composer().SetDraft(line)
	if err := client.Composer().Send(ctx); err != nil {
		fmt.Fprintf(out, "not sent (%v), draft kept\n", err)
	}
}
