// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Eva Contributors

//go:build integration

package integration

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention

	"github.com/evahq/eva/internal/api"
	"github.com/evahq/eva/internal/builtin"
	"github.com/evahq/eva/internal/director"
	"github.com/evahq/eva/internal/hook"
	"github.com/evahq/eva/internal/interaction"
	"github.com/evahq/eva/internal/plugin"
	"github.com/evahq/eva/internal/plugin/lua"
	"github.com/evahq/eva/internal/transport"
)

// scripts are Lua plugins installed into every test plugin directory.
var scripts = map[string]string{
	"answer": `
eva.on("interaction", function(ctx)
  if ctx:contains("hello") then
    ctx:set_output_text("hi there")
  end
end)`,
	"speaker": `
eva.on("text-to-speech", function(ctx)
  ctx:set_output_audio("\1\2\3", "audio/wav")
end)`,
	"first": `
eva.on("interaction", function(ctx)
  ctx:set_output_text("from first", true)
end)`,
	"second": `
eva.on("interaction", function(ctx)
  if not ctx:has_responded() then
    ctx:set_output_text("from second")
  end
end)`,
	"shout": `
eva.on("pre-publish", function(b)
  b:set_message(string.upper(b:message()))
end)`,
}

// stack is a booted runtime serving HTTP.
type stack struct {
	ctx      context.Context
	cancel   context.CancelFunc
	manager  *plugin.Manager
	director *director.Director
	broker   *transport.Broker
	http     *httptest.Server
	serveErr chan error
}

// installScripts installs the listed scripts. IDs without a script are
// skipped.
func installScripts(dir string, ids ...string) {
	for _, id := range ids {
		src, ok := scripts[id]
		if !ok {
			continue
		}
		pdir := filepath.Join(dir, id)
		Expect(os.MkdirAll(pdir, 0o755)).To(Succeed())
		manifest := "name: " + id + "\nversion: 1.0.0\nruntime: lua\n"
		Expect(os.WriteFile(filepath.Join(pdir, id+".yaml"), []byte(manifest), 0o600)).To(Succeed())
		Expect(os.WriteFile(filepath.Join(pdir, id+".lua"), []byte(src), 0o600)).To(Succeed())
	}
}

// bootStack activates the enabled plugins and serves the API and the
// websocket bridge. Only the enabled scripts are installed.
func bootStack(builtins bool, enabled ...string) *stack {
	dir := GinkgoT().TempDir()
	installScripts(dir, enabled...)

	bus := hook.NewBus()
	opts := []plugin.ManagerOption{
		plugin.WithConfigDir(filepath.Join(dir, "_config")),
		plugin.WithRuntime(plugin.KindLua, lua.NewRuntime()),
	}
	if builtins {
		opts = append(opts, plugin.WithBuiltins(builtin.All()...))
	}
	manager := plugin.NewManager(dir, bus, opts...)

	broker := transport.NewBroker()
	d := director.New(bus, manager,
		director.WithEnabledPlugins(enabled...),
		director.WithTransport(broker),
		director.WithWorkers(2),
	)

	ctx, cancel := context.WithCancel(context.Background())
	_, err := d.Boot(ctx)
	Expect(err).NotTo(HaveOccurred())

	srv := api.NewServer("127.0.0.1:0", d,
		api.WithPlugins(manager),
		api.WithHooks(bus),
		api.WithWebSocket(transport.NewBridge(broker)),
	)

	s := &stack{
		ctx:      ctx,
		cancel:   cancel,
		manager:  manager,
		director: d,
		broker:   broker,
		http:     httptest.NewServer(srv.Handler()),
		serveErr: make(chan error, 1),
	}
	go func() { s.serveErr <- d.Serve(ctx) }()
	Eventually(func() int { return broker.Subscribers(transport.TopicCommands) }).Should(Equal(1))

	DeferCleanup(s.close)
	return s
}

func (s *stack) close() {
	s.cancel()
	Eventually(s.serveErr, 5*time.Second).Should(Receive(BeNil()))
	s.http.Close()
	s.broker.Close()
	Expect(s.manager.Close(context.Background())).To(Succeed())
}

func (s *stack) interact(body string) string {
	resp, err := http.Post(s.http.URL+"/v1/interactions", "application/json", strings.NewReader(body))
	Expect(err).NotTo(HaveOccurred())
	defer func() { _ = resp.Body.Close() }()
	Expect(resp.StatusCode).To(Equal(http.StatusOK))
	data, err := io.ReadAll(resp.Body)
	Expect(err).NotTo(HaveOccurred())
	return string(data)
}

func (s *stack) dial() *websocket.Conn {
	url := "ws" + strings.TrimPrefix(s.http.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	Expect(err).NotTo(HaveOccurred())
	DeferCleanup(func() { _ = conn.Close() })
	Eventually(func() int { return s.broker.Subscribers(transport.TopicResponses) }).Should(Equal(1))
	return conn
}

func readMessage(conn *websocket.Conn) transport.Message {
	Expect(conn.SetReadDeadline(time.Now().Add(5 * time.Second))).To(Succeed())
	var msg transport.Message
	Expect(conn.ReadJSON(&msg)).To(Succeed())
	return msg
}

var _ = Describe("Interactions over HTTP", func() {
	It("returns an empty response when no plugin answers", func() {
		s := bootStack(false)
		Expect(s.interact(`{"input_text":"hello"}`)).To(MatchJSON(`{"output_text":null,"output_audio":null}`))
	})

	It("keeps builtins inactive unless they are enabled", func() {
		s := bootStack(true)
		Expect(s.interact(`{"input_text":"what time is it"}`)).To(MatchJSON(`{"output_text":null,"output_audio":null}`))
		info, ok := s.manager.Get(builtin.FallbackID)
		Expect(ok).To(BeTrue())
		Expect(info.Status).To(Equal(plugin.StatusNotLoaded.String()))
	})

	It("returns the text set by an interaction handler", func() {
		s := bootStack(false, "answer")
		Expect(s.interact(`{"input_text":"hello"}`)).To(MatchJSON(`{"output_text":"hi there","output_audio":null}`))
	})

	It("adds audio from a text-to-speech handler", func() {
		s := bootStack(false, "answer", "speaker")
		Expect(s.interact(`{"input_text":"hello"}`)).To(MatchJSON(`{
			"output_text": "hi there",
			"output_audio": {"audio": "AQID", "content_type": "audio/wav"}
		}`))
	})

	It("lets a later handler see that an earlier one responded", func() {
		s := bootStack(false, "first", "second")
		Expect(s.interact(`{"input_text":"anything"}`)).To(MatchJSON(`{"output_text":"from first","output_audio":null}`))
	})

	It("falls back to the builtin answer", func() {
		s := bootStack(true, "answer", builtin.FallbackID)
		body := s.interact(`{"input_text":"what time is it"}`)
		var resp interaction.Response
		Expect(json.Unmarshal([]byte(body), &resp)).To(Succeed())
		Expect(resp.Text()).To(Equal(builtin.DefaultFallbackMessage))

		Expect(s.interact(`{"input_text":"hello"}`)).To(MatchJSON(`{"output_text":"hi there","output_audio":null}`))
	})

	It("reports activated plugins", func() {
		s := bootStack(false, "answer")
		resp, err := http.Get(s.http.URL + "/v1/plugins/answer")
		Expect(err).NotTo(HaveOccurred())
		defer func() { _ = resp.Body.Close() }()

		var info plugin.Info
		Expect(json.NewDecoder(resp.Body).Decode(&info)).To(Succeed())
		Expect(info.Status).To(Equal(plugin.StatusLoaded.String()))
		Expect(info.Runtime).To(Equal(plugin.KindLua))
	})
})

var _ = Describe("Interactions over the websocket", func() {
	It("answers commands on eva_responses", func() {
		s := bootStack(false, "answer")
		conn := s.dial()

		cmd, err := transport.NewMessage(transport.TopicCommands, interaction.NewTextRequest("hello"))
		Expect(err).NotTo(HaveOccurred())
		Expect(conn.WriteJSON(cmd)).To(Succeed())

		msg := readMessage(conn)
		Expect(msg.Topic).To(Equal(transport.TopicResponses))
		Expect(string(msg.Data)).To(MatchJSON(`{"output_text":"hi there","output_audio":null}`))
	})

	It("delivers published messages after pre-publish rewrites them", func() {
		s := bootStack(false, "shout")
		conn := s.dial()

		Expect(s.director.Publish(s.ctx, "dinner is ready")).To(Succeed())

		msg := readMessage(conn)
		Expect(msg.Topic).To(Equal(transport.TopicMessages))
		Expect(string(msg.Data)).To(MatchJSON(`"DINNER IS READY"`))
	})
})
