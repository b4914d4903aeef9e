package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/aigree/aigree/pkg/config"
	"github.com/aigree/aigree/pkg/handler"
	"github.com/aigree/aigree/pkg/service"
	"github.com/aigree/aigree/pkg/utils"
	"gorm.io/gorm"
)

// collaborators bundles the AI backends the server wires into services.
type collaborators struct {
	Extractor   service.IssueExtractor
	Generator   service.ProposalGenerator
	Comparator  service.ProposalComparator
	Drafter     service.AgreementDrafter
	Responder   service.Responder
	Analyzer    service.SentimentAnalyzer
	Transcriber service.Transcriber
}

type Server struct {
	ginEngine *gin.Engine
	cfg       *config.AppConfig
	logger    *slog.Logger
	port      int
}

func NewServer(cfg *config.AppConfig, gdb *gorm.DB, ai collaborators) *Server {
	ginEngine := gin.New()
	ginEngine.Use(gin.Recovery())

	// CORS middleware: allow common localhost dev origins.
	ginEngine.Use(func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")

		// No Origin header means it's not a browser CORS request.
		if origin != "" {
			allowed := strings.HasPrefix(origin, "http://localhost") ||
				strings.HasPrefix(origin, "http://127.0.0.1") ||
				strings.HasPrefix(origin, "https://localhost") ||
				strings.HasPrefix(origin, "https://127.0.0.1")
			if allowed {
				c.Header("Access-Control-Allow-Origin", origin)
				c.Header("Vary", "Origin")
				c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
				c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization, X-User-ID")
			} else {
				c.AbortWithStatus(http.StatusForbidden)
				return
			}
		}

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	})

	server := &Server{
		ginEngine: ginEngine,
		cfg:       cfg,
		logger:    utils.GetLogger(),
		port:      0,
	}

	server.SetupRoutes(gdb, ai)

	return server
}

func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host(), s.cfg.Port())
	srv := &http.Server{Addr: addr, Handler: s.ginEngine}

	// Listen first so an occupied port fails immediately.
	ln, err := net.Listen("tcp", srv.Addr)
	if err != nil {
		return err
	}
	if tcpAddr, ok := ln.Addr().(*net.TCPAddr); ok {
		s.port = tcpAddr.Port
	}
	s.logger.Info("HTTP server listening", "addr", ln.Addr().String())

	errChan := make(chan error, 1)
	go func() {
		errChan <- srv.Serve(ln)
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	select {
	case err := <-errChan:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	default:
	}
	return nil
}

func (s *Server) SetupRoutes(gdb *gorm.DB, ai collaborators) {
	userService := service.NewUserService(gdb)
	projectService := service.NewProjectService(gdb)
	invitationService := service.NewInvitationService(gdb)
	estateService := service.NewEstateService(gdb)
	conversationService := service.NewConversationService(gdb, ai.Responder, ai.Analyzer)
	issueService := service.NewIssueService(gdb, ai.Extractor, s.cfg.MinMessages())
	proposalService := service.NewProposalService(gdb, ai.Generator, ai.Comparator)
	agreementService := service.NewAgreementService(gdb, ai.Drafter)
	signatureService := service.NewSignatureService(gdb)
	workflowService := service.NewWorkflowService(gdb,
		projectService, conversationService, issueService, proposalService,
		agreementService, signatureService,
		time.Duration(s.cfg.FlightTTLSeconds())*time.Second)

	userHandler := handler.NewUserHandler(userService)
	projectHandler := handler.NewProjectHandler(projectService)
	invitationHandler := handler.NewInvitationHandler(invitationService)
	estateHandler := handler.NewEstateHandler(estateService, projectService)
	conversationHandler := handler.NewConversationHandler(conversationService, projectService)
	issueHandler := handler.NewIssueHandler(issueService, workflowService, projectService)
	proposalHandler := handler.NewProposalHandler(proposalService, workflowService, projectService)
	agreementHandler := handler.NewAgreementHandler(agreementService, signatureService, workflowService, projectService)
	workflowHandler := handler.NewWorkflowHandler(workflowService)
	speechHandler := handler.NewSpeechHandler(ai.Transcriber, ai.Analyzer)
	signingWSHandler := handler.NewSigningWSHandler(signatureService, userService)

	// API group
	// /api
	apiGroup := s.ginEngine.Group("/api")

	// Registration happens before an identity exists locally.
	apiGroup.POST("/users", userHandler.Register)

	authed := apiGroup.Group("")
	authed.Use(handler.Identity(userService))

	// User lookup routes
	// /api/users
	authed.GET("/users/me", userHandler.Me)
	authed.GET("/users/lookup", userHandler.GetByEmail)
	authed.GET("/users/:id", userHandler.Get)

	// Project management routes
	// /api/projects
	projectsGroup := authed.Group("/projects")
	{
		projectsGroup.POST("", projectHandler.Create)
		projectsGroup.GET("", projectHandler.List)
		projectsGroup.GET(":id", projectHandler.Get)
		projectsGroup.PUT(":id", projectHandler.Update)
		projectsGroup.DELETE(":id", projectHandler.Delete)
		projectsGroup.GET(":id/members", projectHandler.ListMembers)
		projectsGroup.GET(":id/invitations", invitationHandler.List)

		// Estate reference data
		projectsGroup.POST(":id/estates", estateHandler.Register)
		projectsGroup.GET(":id/estates", estateHandler.List)
		projectsGroup.PUT(":id/estates/:estateId", estateHandler.Update)
		projectsGroup.DELETE(":id/estates/:estateId", estateHandler.Delete)

		// Conversation phase
		projectsGroup.POST(":id/enter", workflowHandler.Enter)
		projectsGroup.GET(":id/messages", conversationHandler.ListMessages)
		projectsGroup.POST(":id/messages", conversationHandler.Append)
		projectsGroup.POST(":id/reply", conversationHandler.Reply)
		projectsGroup.GET(":id/sentiment-summary", conversationHandler.SentimentSummary)

		// Issue phase
		projectsGroup.POST(":id/issues/extract", issueHandler.Extract)
		projectsGroup.GET(":id/issues", issueHandler.List)
		projectsGroup.PUT(":id/issues/:issueId", issueHandler.Update)
		projectsGroup.DELETE(":id/issues/:issueId", issueHandler.Delete)

		// Proposal phase
		projectsGroup.POST(":id/proposals/generate", proposalHandler.Generate)
		projectsGroup.POST(":id/proposals/compare", proposalHandler.Compare)
		projectsGroup.GET(":id/proposals", proposalHandler.List)

		// Agreement phase
		projectsGroup.POST(":id/agreement/draft", agreementHandler.Draft)
		projectsGroup.GET(":id/agreement", agreementHandler.Get)
		projectsGroup.PUT(":id/agreement", agreementHandler.Update)

		// Aggregated screen state
		projectsGroup.GET(":id/view", workflowHandler.View)
	}

	// Proposal item routes
	// /api/proposals
	proposalsGroup := authed.Group("/proposals")
	{
		proposalsGroup.GET(":id", proposalHandler.Get)
		proposalsGroup.PUT(":id", proposalHandler.Update)
		proposalsGroup.PUT(":id/favorite", proposalHandler.ToggleFavorite)
		proposalsGroup.DELETE(":id", proposalHandler.Delete)
	}

	// Signature routes
	// /api/agreements
	agreementsGroup := authed.Group("/agreements")
	{
		agreementsGroup.POST(":id/signatures", agreementHandler.Sign)
		agreementsGroup.GET(":id/signatures", agreementHandler.ListSignatures)
		agreementsGroup.GET(":id/progress", agreementHandler.Progress)
	}

	// Invitation routes
	// /api/invitations
	invitationsGroup := apiGroup.Group("/invitations")
	{
		invitationsGroup.GET("/accept/:token", invitationHandler.Accept)

		authedInvitations := invitationsGroup.Group("")
		authedInvitations.Use(handler.Identity(userService))
		authedInvitations.POST("", invitationHandler.Create)
		authedInvitations.POST("/complete/:token", invitationHandler.Complete)
	}

	// Speech and analysis routes
	authed.POST("/speech/transcribe", speechHandler.Transcribe)
	authed.POST("/analysis/sentiment", speechHandler.AnalyzeSentiment)

	// Signing progress push
	// /ws
	s.ginEngine.GET("/ws/agreements/:id/signatures", signingWSHandler.Stream)
}
