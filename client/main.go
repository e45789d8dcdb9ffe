package main

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/url"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/gorilla/websocket"

	"github.com/ziqiy-dream/werewolf-judge/models"
	"github.com/ziqiy-dream/werewolf-judge/network"
	"github.com/ziqiy-dream/werewolf-judge/view"
)

var (
	red    = color.New(color.FgHiRed).SprintfFunc()
	green  = color.New(color.FgHiGreen).SprintfFunc()
	yellow = color.New(color.FgHiYellow).SprintfFunc()
	cyan   = color.New(color.FgHiCyan).SprintfFunc()
	faint  = color.New(color.Faint).SprintfFunc()
)

const help = `commands:
  create                         create a room
  join <roomId>                  join a room
  roles werewolf=2 villager=3    set role counts (host)
  start | next | disband         host controls
  kill|check|heal|poison|protect <playerId>
  skip                           pass your turn
  leave                          leave the room
  quit`

var errUsage = errors.New("usage")

// client 当前连接的状态
type client struct {
	nickname string
	roomID   string
	out      io.Writer
}

// command turns one input line into an outbound event.
func (c *client) command(line string) (string, interface{}, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return "", nil, errUsage
	}
	room := map[string]interface{}{"roomId": c.roomID}

	switch cmd := fields[0]; cmd {
	case "create":
		return network.EventCreateRoom, map[string]string{"nickname": c.nickname}, nil
	case "join":
		if len(fields) != 2 {
			return "", nil, errUsage
		}
		return network.EventJoinRoom, map[string]string{"roomId": strings.ToUpper(fields[1]), "nickname": c.nickname}, nil
	case "roles":
		settings := models.GameSettings{Roles: map[models.Role]int{}}
		for _, kv := range fields[1:] {
			name, count, ok := strings.Cut(kv, "=")
			n, err := strconv.Atoi(count)
			if !ok || err != nil {
				return "", nil, fmt.Errorf("bad role count %q", kv)
			}
			settings.Roles[models.Role(name)] = n
		}
		room["settings"] = settings
		return network.EventUpdateSettings, room, nil
	case "start":
		return network.EventStartGame, room, nil
	case "next":
		return network.EventNextPhase, room, nil
	case "leave":
		return network.EventLeaveRoom, room, nil
	case "disband":
		return network.EventDisbandRoom, room, nil
	case "skip":
		room["action"] = models.NightAction{ActionType: models.ActionSkip}
		return network.EventGameAction, room, nil
	case "kill", "check", "heal", "poison", "protect":
		if len(fields) != 2 {
			return "", nil, errUsage
		}
		room["action"] = models.NightAction{ActionType: models.ActionType(cmd), TargetID: fields[1]}
		return network.EventGameAction, room, nil
	default:
		return "", nil, fmt.Errorf("unknown command %q", cmd)
	}
}

// handle prints one inbound event.
func (c *client) handle(msg *network.Message) {
	switch msg.Event {
	case network.EventRoomUpdate:
		var v view.ClientView
		if err := msg.Decode(&v); err != nil {
			fmt.Fprintln(c.out, red("bad room_update: %v", err))
			return
		}
		c.roomID = v.ID
		render(c.out, v)
	case network.EventError:
		var e struct {
			Message string `json:"message"`
		}
		msg.Decode(&e)
		fmt.Fprintln(c.out, red("error: %s", e.Message))
	case network.EventRoomLeft, network.EventRoomDisbanded:
		fmt.Fprintln(c.out, yellow("%s %s", msg.Event, c.roomID))
		c.roomID = ""
	default:
		fmt.Fprintln(c.out, faint("%s %s", msg.Event, string(msg.Data)))
	}
}

func render(w io.Writer, v view.ClientView) {
	gs := v.GameState
	phase := string(gs.Phase)
	if gs.NightPhase != "" && gs.Phase == models.PhaseNight {
		phase += "/" + string(gs.NightPhase)
	}
	fmt.Fprintf(w, "%s  day %d  %s", cyan("room %s", v.ID), gs.DayCount, yellow(phase))
	if gs.PhaseDuration > 0 {
		fmt.Fprintf(w, "  (%gs)", gs.PhaseDuration)
	}
	fmt.Fprintln(w)
	if v.MyRole != "" {
		fmt.Fprintf(w, "you are %s\n", red(string(v.MyRole)))
	}

	for _, p := range v.Players {
		line := fmt.Sprintf("  %-8s %s", p.ID[:min(8, len(p.ID))], p.Nickname)
		if p.IsHost {
			line += " *"
		}
		if p.Role != "" {
			line += " [" + string(p.Role) + "]"
		}
		if p.IsAlive {
			fmt.Fprintln(w, green(line))
		} else {
			fmt.Fprintln(w, faint("%s (%s)", line, p.DeathReason))
		}
	}

	if gs.CurrentWolfTarget != nil {
		fmt.Fprintf(w, "wolves chose %s\n", red(*gs.CurrentWolfTarget))
	}
	if gs.SeerResult != nil {
		side := green("good")
		if gs.SeerResult.IsWerewolf {
			side = red("werewolf")
		}
		fmt.Fprintf(w, "%s is %s\n", gs.SeerResult.Nickname, side)
	}
	if len(gs.DeadPlayers) > 0 {
		last := gs.DeadPlayers[len(gs.DeadPlayers)-1]
		ids := append([]string(nil), last.PlayerIDs...)
		sort.Strings(ids)
		fmt.Fprintf(w, "night %d deaths: %v\n", last.Day, ids)
	}
}

func main() {
	addr := flag.String("addr", "localhost:3001", "server address")
	name := flag.String("name", "player", "nickname")
	flag.Parse()

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)
	u := url.URL{Scheme: "ws", Host: *addr, Path: "/ws"}
	log.Printf("Connecting to %s", u.String())

	ws, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		log.Fatalf("Dial failed: %v", err)
	}
	conn := network.NewWSConnection(ws)
	defer conn.Close()

	c := &client{nickname: *name, out: color.Output}
	messages := make(chan *network.Message)
	done := make(chan struct{})

	// Read loop
	go func() {
		defer close(done)
		for {
			msg, err := conn.ReadMessage()
			if err != nil {
				log.Println("Read error:", err)
				return
			}
			messages <- msg
		}
	}()

	lines := make(chan string)
	go func() {
		reader := bufio.NewScanner(os.Stdin)
		for reader.Scan() {
			lines <- reader.Text()
		}
		close(lines)
	}()

	fmt.Println(help)
	heartbeat := time.NewTicker(10 * time.Second)
	defer heartbeat.Stop()

	for {
		select {
		case <-done:
			return
		case <-interrupt:
			log.Println("Interrupt received, closing connection.")
			ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			select {
			case <-done:
			case <-time.After(time.Second):
			}
			return
		case <-heartbeat.C:
			conn.Send(network.EventHeartbeat, nil)
		case msg := <-messages:
			c.handle(msg)
		case line, ok := <-lines:
			if !ok || strings.TrimSpace(line) == "quit" {
				return
			}
			event, data, err := c.command(line)
			if errors.Is(err, errUsage) {
				fmt.Println(help)
				continue
			}
			if err != nil {
				fmt.Println(red("%v", err))
				continue
			}
			if err := conn.Send(event, data); err != nil {
				log.Println("Write error:", err)
				return
			}
		}
	}
}
