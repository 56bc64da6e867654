package bot

// Texts sent to users, in Portuguese like the rest of the bot.
const (
	msgWelcome              = "👋 Bem-vindo ao Bot de Notificações! Vamos configurar suas preferências para enviar atualizações personalizadas."
	msgWelcomeBack          = "Bem-vindo de volta, %s! Seu perfil já está configurado. Você receberá notificações com base em seus interesses."
	msgAskName              = "Para começarmos, por favor, informe seu nome completo:"
	msgAskEmail             = "Obrigado, %s! Agora, por favor, informe seu e-mail para contato:"
	msgAskIntention         = "Ótimo! Agora, conte-nos qual é a sua intenção ao usar nosso serviço:"
	msgAskInterests         = "Por último, informe seus interesses utilizando palavras-chave separadas por vírgula (exemplo: tecnologia, marketing, startups):"
	msgRegistrationComplete = "✅ Cadastro concluído com sucesso!\n\nSeu perfil foi registrado com os seguintes dados:\n\n👤 Nome: %s\n📧 E-mail: %s\n🎯 Intenção: %s\n🔑 Interesses: %s\n\nVocê receberá um link para o seu grupo em breve. Obrigado por se cadastrar!"
	msgRegistrationFailed   = "❌ Ocorreu um erro ao salvar seus dados. Por favor, tente novamente mais tarde."
	msgAlreadyRegistered    = "Você já está registrado. Use /status para ver seu perfil."
	msgNotRegistered        = "Você ainda não está registrado. Use o comando /start para se registrar."
	msgAskUpdate            = "Vamos atualizar seus interesses. Por favor, informe suas palavras-chave de interesse separadas por vírgula:"
	msgInterestsUpdated     = "✅ Seus interesses foram atualizados para: %s"
	msgEmptyAnswer          = "Por favor, envie uma resposta em texto."
	msgCancelled            = "Operação cancelada."
	msgNothingToCancel      = "Não há nenhuma operação em andamento."
	msgMyID                 = "Seu ID no Telegram é: %d"
	msgCommandNotFound      = "Comando não reconhecido. Use /help para ver os comandos disponíveis."
	msgAdminOnly            = "Este comando está disponível apenas para administradores."
	msgError                = "😕 Ocorreu um erro inesperado. Por favor, tente novamente ou entre em contato com o suporte."
	msgHelp                 = "📚 *Comandos Disponíveis:*\n\n/start - Iniciar ou reiniciar o bot\n/status - Ver seu status atual\n/update - Atualizar suas preferências\n/myid - Ver seu ID no Telegram\n/cancel - Cancelar a operação atual\n/help - Exibir esta mensagem de ajuda"
	msgBackupSuccess        = "✅ Backup do banco de dados criado com sucesso!\nArquivo: %s"
	msgBackupFailed         = "❌ Falha ao criar backup do banco de dados."
	msgUserRemoved          = "✅ Usuário removido com sucesso!"
	msgUserNotFound         = "❌ Usuário não encontrado."
	msgUsageRemoveUser      = "❓ Uso correto: /removeuser ID_DO_USUARIO"
	msgUsageAddGroup        = "❓ Uso: /addgroup GROUP_ID"
	msgUsageFindUser        = "❓ Uso: /finduser TERMO_DE_BUSCA"
	msgGroupAdded           = "✅ Grupo adicionado com ID: %s"
	msgGroupAddFailed       = "❌ Falha ao adicionar grupo."
	msgNoUsersFound         = "❌ Nenhum usuário encontrado."
	msgStatsFailed          = "Erro ao gerar estatísticas."
)
